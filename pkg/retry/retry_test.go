package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Success(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: 5 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Quick(), func() error {
		attempts++
		return NonRetryable(errors.New("size mismatch"))
	})

	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, Multiplier: 2.0}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestConfig_DelaySchedule(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, time.Duration(0), cfg.Delay(1))
	assert.Equal(t, 1*time.Second, cfg.Delay(2))
	assert.Equal(t, 2*time.Second, cfg.Delay(3))
	assert.Equal(t, 4*time.Second, cfg.Delay(4))

	// cumulative offsets of the default schedule: 0, 1s, 3s
	var elapsed time.Duration
	var offsets []time.Duration
	for attempt := 1; attempt <= cfg.Attempts(); attempt++ {
		elapsed += cfg.Delay(attempt)
		offsets = append(offsets, elapsed)
	}
	assert.Equal(t, []time.Duration{0, time.Second, 3 * time.Second}, offsets)
}

func TestConfig_DelayCappedByMaxDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}

	assert.Equal(t, time.Second, cfg.Delay(2))
	assert.Equal(t, 3*time.Second, cfg.Delay(3))
	assert.Equal(t, 3*time.Second, cfg.Delay(50))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Quick().Validate())

	assert.Error(t, Config{InitialDelay: -1}.Validate())
	assert.Error(t, Config{Multiplier: -1}.Validate())
	assert.Error(t, Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}.Validate())
}

func TestConfig_WaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{InitialDelay: time.Hour, Multiplier: 2}
	assert.ErrorIs(t, cfg.Wait(ctx, 2), context.Canceled)
}

func TestRetry_WithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), Config{}, func() error {
		attempts++
		return errors.New("fail")
	})
	assert.Equal(t, 1, attempts)
}
