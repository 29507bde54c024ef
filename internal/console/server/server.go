package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/console/handler"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов (RS256). nil: периметр открыт (локальный режим)
	authValidator auth.TokenValidator

	authHandler     *handler.AuthHandler     // /auth/token
	workflowHandler *handler.WorkflowHandler // /v1/state, /v1/workflow/start, ...
	auditHandler    *handler.AuditHandler    // /v1/audit, nil если БД не настроена
	stream          http.Handler             // /v1/stream (WebSocket)
}

// NewConsoleServer инициализирует Console API со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	workflowH *handler.WorkflowHandler,
	auditH *handler.AuditHandler,
	stream http.Handler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		authHandler:     authH,
		workflowHandler: workflowH,
		auditHandler:    auditH,
		stream:          stream,
	}
	if validator == nil {
		s.logger.Warn("auth public key is not configured: workflow start is not protected")
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ: read-only срезы состояния ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		r.Get("/v1/state", s.workflowHandler.State)
		r.Route("/v1/nodes", func(r chi.Router) {
			r.Get("/", s.workflowHandler.Nodes)
			r.Get("/{id}", s.workflowHandler.Node)
		})
		r.Get("/v1/edges", s.workflowHandler.Edges)
		r.Get("/v1/logs", s.workflowHandler.Logs)
		r.Get("/v1/directory", s.workflowHandler.Directory)

		if s.stream != nil {
			r.Get("/v1/stream", s.stream.ServeHTTP)
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		r.With(s.requireScope(domain.ScopeWorkflowStart)).Post("/v1/workflow/start", s.workflowHandler.Start)

		if s.auditHandler != nil {
			r.Get("/v1/audit", s.auditHandler.GetEntries)
		}
	})
}

func (s *ConsoleServer) requireScope(scope string) func(http.Handler) http.Handler {
	if s.authValidator == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequireScope(scope, s.logger)
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger пишет access-лог через zap вместо стандартного log.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
