// Package reliability оборачивает исходящие вызовы (Redis, Postgres) в
// rate limiter, circuit breaker и повтор с экспоненциальной задержкой.
package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Settings struct {
	Name string

	RateLimit float64 // вызовов в секунду; 0 = без ограничения
	Burst     int

	Attempts    uint
	RetryDelay  time.Duration // база экспоненты; 0 = задержка retry-go по умолчанию
	CallTimeout time.Duration // на одну попытку

	MaxConsecutiveFailures uint32        // после стольких провалов подряд предохранитель размыкается
	OpenTimeout            time.Duration // через сколько пробуем half-open
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:                   name,
		RateLimit:              100,
		Burst:                  20,
		Attempts:               3,
		CallTimeout:            10 * time.Second,
		MaxConsecutiveFailures: 5,
		OpenTimeout:            30 * time.Second,
	}
}

type Wrapper struct {
	settings Settings
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New собирает обертку. stateGauge может быть nil.
func New(s Settings, logger *zap.Logger, stateGauge *prometheus.GaugeVec) *Wrapper {
	if s.Attempts == 0 {
		s.Attempts = 1
	}
	if s.MaxConsecutiveFailures == 0 {
		s.MaxConsecutiveFailures = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("mod", "reliability"), zap.String("breaker", s.Name))

	limit := rate.Inf
	if s.RateLimit > 0 {
		limit = rate.Limit(s.RateLimit)
	}
	burst := s.Burst
	if burst <= 0 {
		burst = 1
	}

	if stateGauge != nil {
		stateGauge.WithLabelValues(s.Name).Set(0)
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     s.OpenTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if stateGauge != nil {
				stateGauge.WithLabelValues(name).Set(stateValue(to))
			}
		},
	})

	return &Wrapper{
		settings: s,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

// Do выполняет fn с лимитом, предохранителем и повторами.
// Когда предохранитель разомкнут, возвращается gobreaker.ErrOpenState без вызова fn.
func (w *Wrapper) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker, повторы внутри
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.settings.Attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				if w.settings.RetryDelay > 0 {
					return w.settings.RetryDelay << min(n, 10)
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			callCtx := ctx
			if w.settings.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, w.settings.CallTimeout)
				defer cancel()
			}
			return fn(callCtx)
		})
	})
	return err
}

func (w *Wrapper) State() gobreaker.State {
	return w.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	}
	return 0
}
