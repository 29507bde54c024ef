// Package app собирает ядро (каталог, сид агентов, движок, метрики) из конфига.
// Используется и сервером, и CLI.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/engine"
	"github.com/xela07ax/nexusflow/internal/infra"
	"github.com/xela07ax/nexusflow/internal/ledger"
	"github.com/xela07ax/nexusflow/internal/seed"
)

type App struct {
	Config    *infra.Config
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *engine.Metrics
	Directory *directory.Directory
	Nodes     []domain.AgentNode
	Engine    *engine.Engine
}

// New регистрирует агентов в каталоге и собирает движок.
// Дополнительные опции движка (пейсер, наблюдатели) применяются последними.
func New(cfg *infra.Config, logger *zap.Logger, opts ...engine.Option) (*App, error) {
	agents, err := seed.Load(cfg.Engine.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	dir := directory.New()
	nodes, err := seed.Apply(dir, agents)
	if err != nil {
		return nil, fmt.Errorf("register agents: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	base := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithLedger(ledger.New(cfg.Engine.LedgerCapacity)),
	}
	eng, err := engine.NewEngine(dir, nodes, cfg.Engine.Workflow(), append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	logger.Info("directory ready",
		zap.Int("agents", dir.Count()),
		zap.String("seed_file", cfg.Engine.SeedFile))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Metrics:   metrics,
		Directory: dir,
		Nodes:     nodes,
		Engine:    eng,
	}, nil
}
