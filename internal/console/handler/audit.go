package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/console/service"
)

type AuditHandler struct {
	service *service.AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s *service.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger}
}

// GetEntries возвращает журнал аудита с фильтрацией
// GET /v1/audit?run_id=...&limit=...
func (h *AuditHandler) GetEntries(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.service.FetchEntries(r.Context(), runID, limit)
	if err != nil {
		h.logger.Error("audit fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch audit entries")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
