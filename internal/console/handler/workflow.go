package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/console/service"
	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/engine"
	"github.com/xela07ax/nexusflow/internal/infra/auth"
)

type WorkflowHandler struct {
	service *service.WorkflowService
	logger  *zap.Logger
}

func NewWorkflowHandler(s *service.WorkflowService, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{service: s, logger: logger}
}

type startResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Start — POST /v1/workflow/start. 202 при запуске, 409 если транзакция уже идет.
func (h *WorkflowHandler) Start(w http.ResponseWriter, r *http.Request) {
	runID, err := h.service.Start(r.Context(), auth.UserID(r.Context()))
	if errors.Is(err, engine.ErrBusy) {
		writeError(w, http.StatusConflict, "workflow already running")
		return
	}
	if err != nil {
		h.logger.Error("workflow start failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{RunID: runID, Status: "started"})
}

// State — GET /v1/state
func (h *WorkflowHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

func (h *WorkflowHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Snapshot().Nodes)
}

// Node — GET /v1/nodes/{id}, выбор узла в инспекторе.
func (h *WorkflowHandler) Node(w http.ResponseWriter, r *http.Request) {
	node, err := h.service.Node(chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrNodeNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *WorkflowHandler) Edges(w http.ResponseWriter, r *http.Request) {
	edges := h.service.Snapshot().Edges
	if edges == nil {
		edges = []domain.RelationEdge{}
	}
	writeJSON(w, http.StatusOK, edges)
}

func (h *WorkflowHandler) Logs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Snapshot().Logs)
}

// Directory — GET /v1/directory?role=&capability=&jurisdiction=
func (h *WorkflowHandler) Directory(w http.ResponseWriter, r *http.Request) {
	q := directory.Query{
		Role:         domain.AgentRole(r.URL.Query().Get("role")),
		Capability:   r.URL.Query().Get("capability"),
		Jurisdiction: r.URL.Query().Get("jurisdiction"),
	}
	if q.Role != "" && !q.Role.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	writeJSON(w, http.StatusOK, h.service.FindAgents(q))
}
