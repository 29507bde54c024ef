package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/engine"
)

var ErrNodeNotFound = errors.New("node not found")

// Runner — то, что консоли нужно от движка.
type Runner interface {
	Start(ctx context.Context) (string, error)
	Snapshot() engine.Snapshot
	SelectNode(id string) (domain.AgentNode, bool)
}

type Finder interface {
	Find(q directory.Query) []domain.AgentRecord
}

// WorkflowService — фасад консоли над движком и каталогом.
type WorkflowService struct {
	engine Runner
	dir    Finder
	logger *zap.Logger
}

func NewWorkflowService(e Runner, dir Finder, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{
		engine: e,
		dir:    dir,
		logger: logger.With(zap.String("mod", "workflow_service")),
	}
}

// Start запускает транзакцию. engine.ErrBusy возвращается как есть.
func (s *WorkflowService) Start(ctx context.Context, operator string) (string, error) {
	runID, err := s.engine.Start(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Info("workflow started by operator",
		zap.String("run_id", runID),
		zap.String("operator", operator))
	return runID, nil
}

func (s *WorkflowService) Snapshot() engine.Snapshot {
	return s.engine.Snapshot()
}

func (s *WorkflowService) Node(id string) (domain.AgentNode, error) {
	node, ok := s.engine.SelectNode(id)
	if !ok {
		return domain.AgentNode{}, ErrNodeNotFound
	}
	return node, nil
}

func (s *WorkflowService) FindAgents(q directory.Query) []domain.AgentRecord {
	return s.dir.Find(q)
}
