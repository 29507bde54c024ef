package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/nexusflow/internal/app"
	"github.com/xela07ax/nexusflow/internal/audit"
	"github.com/xela07ax/nexusflow/internal/console/handler"
	"github.com/xela07ax/nexusflow/internal/console/server"
	"github.com/xela07ax/nexusflow/internal/console/service"
	"github.com/xela07ax/nexusflow/internal/engine"
	"github.com/xela07ax/nexusflow/internal/infra"
	"github.com/xela07ax/nexusflow/internal/infra/auth"
	"github.com/xela07ax/nexusflow/internal/notify"
	"github.com/xela07ax/nexusflow/internal/reliability"
	"github.com/xela07ax/nexusflow/internal/repository/postgres"
)

const healthService = "nexusflow.Engine"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Console API, live stream, metrics and gRPC health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg *infra.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	// При SIGTERM контекст отменяется и фоновые слушатели останавливаются
	appCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Ядро: каталог, агенты, движок
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	// 2. Live stream для слоя отображения
	hub := notify.NewHub(a.Engine.Snapshot, logger)
	a.Engine.Subscribe(hub)
	go hub.Run(appCtx)

	// 3. Журнал аудита в Postgres (опционально)
	var auditH *handler.AuditHandler
	if cfg.Database.URL != "" {
		repo, err := postgres.NewJournalRepo(cfg.Database.URL, postgres.PoolOptions{
			MaxOpenConns: cfg.Database.MaxConns,
			MaxIdleConns: cfg.Database.MinConns,
		})
		if err != nil {
			return err
		}
		defer repo.Close()

		pingCtx, cancel := context.WithTimeout(appCtx, 5*time.Second)
		err = repo.Ping(pingCtx)
		if err == nil {
			err = repo.EnsureSchema(pingCtx)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		w := reliability.New(reliability.DefaultSettings("postgres"), logger, a.Metrics.CircuitBreakerState)
		journal := audit.NewJournal(audit.NewReliableStorage(repo, w), cfg.Engine.Journal(), logger, a.Metrics.JournalBufferFill)
		journal.Start()
		defer journal.Stop()
		a.Engine.Subscribe(journal)

		auditH = handler.NewAuditHandler(service.NewAuditService(repo), logger)
		logger.Info("audit journal enabled")
	}

	// 4. Redis: трансляция событий и удаленные команды (опционально)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		w := reliability.New(reliability.DefaultSettings("redis"), logger, a.Metrics.CircuitBreakerState)
		broadcaster := notify.NewBroadcaster(rdb, cfg.Redis.EventsChannel, infra.RedisKeySnapshot, w, logger)
		broadcaster.Start()
		defer broadcaster.Stop()
		a.Engine.Subscribe(broadcaster)

		go notify.ListenCommands(appCtx, rdb, logger, cfg.Redis.CommandsChannel, infra.RedisKeyLockCommand,
			func() error {
				// После переподключения отдаем актуальный снимок
				snap := a.Engine.Snapshot()
				broadcaster.Notify(engine.Event{Kind: engine.EventState, Phase: snap.Phase, RunID: snap.RunID, Snapshot: snap})
				return nil
			},
			func(c notify.Command) {
				runID, err := a.Engine.Start(appCtx)
				if err != nil {
					logger.Warn("remote start rejected", zap.String("command_id", c.ID), zap.Error(err))
					return
				}
				logger.Info("remote start accepted",
					zap.String("command_id", c.ID),
					zap.String("operator", c.Operator),
					zap.String("run_id", runID))
			})
		logger.Info("redis pub/sub enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// 5. Авторизация операторов
	validator, privateKey, err := loadAuth(cfg.Auth)
	if err != nil {
		return err
	}
	authSvc := service.NewAuthService(service.NewOperatorStore(cfg.Auth.Operators), privateKey, cfg.Auth.TokenTTL)

	console := server.NewConsoleServer(
		logger,
		validator,
		handler.NewAuthHandler(authSvc, logger),
		handler.NewWorkflowHandler(service.NewWorkflowService(a.Engine, a.Directory, logger), logger),
		auditH,
		hub,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 3)

	// 6. Метрики
	var metricsSrv *http.Server
	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// 7. gRPC health
	var grpcSrv *grpc.Server
	healthSrv := health.NewServer()
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)
		healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
		go func() {
			logger.Info("gRPC health server started", zap.String("addr", lis.Addr().String()))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 8. Graceful Shutdown
	var runErr error
	select {
	case <-appCtx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	// Транзакцию не отменяем: ждем, пока она дойдет до своего финала
	if a.Engine.IsRunning() {
		logger.Info("waiting for the running workflow to finish")
	}
	a.Engine.Wait()

	logger.Info("nexusflow stopped")
	return runErr
}

// loadAuth: без публичного ключа периметр открыт, без закрытого выдача токенов выключена.
func loadAuth(cfg infra.AuthConfig) (auth.TokenValidator, *rsa.PrivateKey, error) {
	var (
		validator  auth.TokenValidator
		privateKey *rsa.PrivateKey
	)
	if len(cfg.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		validator = auth.NewBaseValidator(pub)
	}
	if len(cfg.PrivateKey) > 0 {
		key, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
		privateKey = key
	}
	return validator, privateKey, nil
}
