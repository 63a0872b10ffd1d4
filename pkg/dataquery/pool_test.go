package dataquery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionPool_AcquireReleaseRoundTrip(t *testing.T) {
	p := NewConnectionPool(1, time.Second)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release()

	release2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestConnectionPool_BlocksUntilSlotFree(t *testing.T) {
	p := NewConnectionPool(1, time.Second)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := p.Acquire(context.Background())
		require.NoError(t, err)
		release2()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should not have succeeded before the first slot was released")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should have succeeded after release")
	}
}

func TestConnectionPool_AcquireTimesOutWhenExhausted(t *testing.T) {
	p := NewConnectionPool(1, 20*time.Millisecond)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestConnectionPool_AcquireRespectsCallerContextCancellation(t *testing.T) {
	p := NewConnectionPool(1, time.Hour)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
