package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSequence(t *testing.T) {
	b := New(Config{
		Initial:    100 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0, // deterministic
	})

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond, // max
		500 * time.Millisecond,
	}

	for i, exp := range expected {
		if got := b.Next(); got != exp {
			t.Errorf("attempt %d: got %v, want %v", i, got, exp)
		}
	}
	if b.Attempts() != len(expected) {
		t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, DefaultInitial, b.Current())

	d := b.Next()
	assert.GreaterOrEqual(t, d, DefaultInitial)
	assert.LessOrEqual(t, d, time.Duration(float64(DefaultInitial)*(1+DefaultJitter))+time.Millisecond)
}

func TestBackoffReset(t *testing.T) {
	b := New(Config{Initial: time.Millisecond, Jitter: 0})
	for i := 0; i < 5; i++ {
		b.Next()
	}
	if b.Current() <= time.Millisecond {
		t.Error("backoff should have increased")
	}

	b.Reset()
	assert.Equal(t, time.Millisecond, b.Current())
	assert.Equal(t, 0, b.Attempts())
}

func TestBackoffMaxBelowInitial(t *testing.T) {
	b := New(Config{Initial: time.Second, Max: time.Millisecond})
	assert.Equal(t, time.Second, b.Current())
	b.Next()
	assert.Equal(t, time.Second, b.Current())
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}

func TestDo(t *testing.T) {
	b := New(Config{Initial: time.Millisecond, Max: 2 * time.Millisecond, Jitter: 0})

	calls := 0
	err := Do(context.Background(), b, 0, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, b.Attempts(), "success resets the backoff")
}

func TestDoMaxAttempts(t *testing.T) {
	b := New(Config{Initial: time.Millisecond, Jitter: 0})
	boom := errors.New("boom")

	calls := 0
	err := Do(context.Background(), b, 2, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDoContextCancelled(t *testing.T) {
	b := New(Config{Initial: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Do(ctx, b, 0, func(context.Context) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
