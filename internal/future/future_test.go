package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ResolvesOnce(t *testing.T) {
	f := New[int]()
	require.False(t, f.Resolved())

	assert.True(t, f.Resolve(7))
	assert.False(t, f.Resolve(8))
	assert.False(t, f.Reject(errors.New("late")))
	assert.False(t, f.Cancel())

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFuture_CancelWakesWaiters(t *testing.T) {
	f := New[bool]()
	got := make(chan error, 1)
	go func() {
		_, err := f.Wait(context.Background())
		got <- err
	}()

	require.True(t, f.Cancel())
	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Cancel")
	}
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.Resolved())
}
