package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SpacesRequests(t *testing.T) {
	rl := NewRateLimiter(20)
	defer rl.Close()

	start := time.Now()
	for i := 0; i < 4; i++ {
		v, err := Do(context.Background(), rl, "example.com", func() (int, error) { return i, nil })
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.GreaterOrEqual(t, time.Since(start), 3*rl.Interval()-5*time.Millisecond)
}

func TestRateLimiter_PropagatesError(t *testing.T) {
	rl := NewRateLimiter(100)
	defer rl.Close()

	boom := errors.New("boom")
	_, err := Do(context.Background(), rl, "example.com", func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := Do(ctx, rl, "example.com", func() (int, error) { called = true; return 0, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRateLimiter_NilAndClosed(t *testing.T) {
	v, err := Do(context.Background(), nil, "h", func() (string, error) { return "direct", nil })
	require.NoError(t, err)
	assert.Equal(t, "direct", v)

	rl := NewRateLimiter(10)
	rl.Close()
	rl.Close()
	_, err = Do(context.Background(), rl, "h", func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrLimiterClosed)
}
