package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/petro-etl/internal/config"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

// failing returns an fn that fails with errs in order, then succeeds.
func failing(calls *int, errs ...error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= len(errs) {
			return errs[*calls-1]
		}
		return nil
	}
}

func TestDo(t *testing.T) {
	locked := NewTransientError(syscall.EBUSY, "open workbook")
	dropped := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	badData := errors.New("volume column missing")

	tests := []struct {
		name      string
		attempts  int
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{"first try", 3, nil, nil, 1},
		{"locked file clears", 3, []error{locked, locked}, nil, 3},
		{"dropped connection clears", 3, []error{dropped}, nil, 2},
		{"exhausted", 3, []error{locked, locked, locked}, locked, 3},
		{"non-transient is not retried", 3, []error{badData}, badData, 1},
		{"single attempt", 1, []error{locked}, locked, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			err := Do(context.Background(), fastRetry(tt.attempts), failing(&calls, tt.errs...))
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.Same(t, tt.wantErr, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.InitialBackoff = 50 * time.Millisecond

	var calls int
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"), "open workbook")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }

	var calls int
	err := Do(context.Background(), cfg, failing(&calls, errors.New("retry me")))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_ = Do(context.Background(), cfg, func(context.Context) error {
		return NewTransientError(errors.New("fail"), "begin load")
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ZeroConfigUsesDefaults(t *testing.T) {
	var calls int
	require.NoError(t, Do(context.Background(), RetryConfig{}, failing(&calls)))
	assert.Equal(t, 1, calls)

	cfg := RetryConfig{}.withDefaults()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.MaxBackoff)
	assert.NotNil(t, cfg.ShouldRetry)
}

func TestDoVal(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("fail"), "open workbook")
		}
		return "BDC_2019.xlsx", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "BDC_2019.xlsx", val)

	n, err := DoVal(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		return 42, NewTransientError(errors.New("fail"), "open workbook")
	})
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
	}.withDefaults()

	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, cfg.backoff(i))
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
	}, got)
}

func TestBackoff_Jitter(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     20 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.5,
	}.withDefaults()

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := cfg.backoff(0)
		seen[d] = true
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
	assert.Greater(t, len(seen), 1)
}

func TestRetryLogger(t *testing.T) {
	log := RetryLogger("extract", "open_workbook")
	assert.NotPanics(t, func() { log(1, errors.New("locked")) })
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RetryConfig{
		MaxAttempts:      5,
		InitialBackoffMs: 100,
		MaxBackoffMs:     2000,
		Multiplier:       3,
		JitterFraction:   0,
	})
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.MaxBackoff)
	assert.InDelta(t, 3, cfg.Multiplier, 1e-9)
	assert.Zero(t, cfg.JitterFraction)
}

func TestFromConfig_ZeroKeepsDefaults(t *testing.T) {
	cfg := FromConfig(config.RetryConfig{JitterFraction: -1})
	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, def.MaxBackoff, cfg.MaxBackoff)
	assert.InDelta(t, def.JitterFraction, cfg.JitterFraction, 1e-9)
}
