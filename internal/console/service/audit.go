package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/nexusflow/internal/audit"
)

type AuditService struct {
	repo audit.Reader
}

func NewAuditService(repo audit.Reader) *AuditService {
	return &AuditService{repo: repo}
}

// FetchEntries — записи журнала аудита, новые первыми. Пустой runID — все транзакции.
func (s *AuditService) FetchEntries(ctx context.Context, runID string, limit int) ([]audit.Entry, error) {
	entries, err := s.repo.FetchEntries(ctx, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch entries: %w", err)
	}
	return entries, nil
}
