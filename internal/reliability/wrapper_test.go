package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastSettings() Settings {
	s := DefaultSettings("test")
	s.RateLimit = 0
	s.RetryDelay = time.Millisecond
	s.CallTimeout = time.Second
	return s
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	w := New(fastSettings(), nil, nil)

	calls := 0
	err := w.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	w := New(fastSettings(), nil, nil)

	calls := 0
	err := w.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_OpensBreaker(t *testing.T) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "cb_state"}, []string{"breaker"})

	s := fastSettings()
	s.Attempts = 1
	s.MaxConsecutiveFailures = 2
	s.OpenTimeout = time.Minute
	w := New(s, nil, gauge)

	fail := func(ctx context.Context) error { return errors.New("down") }
	assert.Error(t, w.Do(context.Background(), fail))
	assert.Error(t, w.Do(context.Background(), fail))
	assert.Equal(t, gobreaker.StateOpen, w.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge.WithLabelValues("test")))

	called := false
	err := w.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}

func TestDo_CanceledContext(t *testing.T) {
	s := fastSettings()
	s.RateLimit = 1
	s.Burst = 1
	w := New(s, nil, nil)

	require.NoError(t, w.Do(context.Background(), func(context.Context) error { return nil }))

	// Токен израсходован, следующий придет через секунду, позже дедлайна
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := w.Do(ctx, func(context.Context) error { return nil })
	assert.Error(t, err)
}
