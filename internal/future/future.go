// Package future provides single-resolution awaitables for the one-shot
// milestones of a room session (connected, slot table synced, reward
// acknowledged).
package future

import (
	"context"
	"errors"
	"sync"
)

var ErrCancelled = errors.New("future cancelled")

// Future resolves at most once. Every Resolve, Reject or Cancel after the
// first is a no-op that reports false.
type Future[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
	err   error
	set   bool
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) Resolve(v T) bool {
	return f.complete(v, nil)
}

func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) Cancel() bool {
	return f.Reject(ErrCancelled)
}

func (f *Future[T]) complete(v T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return false
	}
	f.value, f.err, f.set = v, err, true
	close(f.done)
	return true
}

// Done is closed once the future has a result.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
