package engine

import (
	"context"
	"time"
)

// Pacer — политика пауз между фазами и кандидатами.
// Паузы косметические: на порядок и исход транзакции они не влияют.
type Pacer interface {
	Pause(ctx context.Context, d time.Duration) error
}

// SleepPacer реально ждет заданное время (темп для слоя отображения).
type SleepPacer struct{}

func (SleepPacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoDelay сжимает все паузы до нуля. Используется в тестах и CLI.
type NoDelay struct{}

func (NoDelay) Pause(context.Context, time.Duration) error { return nil }

// PacerFunc позволяет передать функцию как Pacer.
type PacerFunc func(ctx context.Context, d time.Duration) error

func (f PacerFunc) Pause(ctx context.Context, d time.Duration) error { return f(ctx, d) }
