package storage

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"

	"golang.org/x/sync/singleflight"
)

// dialError marks a failure to establish a backend client.
type dialError struct {
	err error
}

func (e *dialError) Error() string { return "dial: " + e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

// handle lazily dials a backend client and caches it until reset.
// Concurrent callers share a single in-flight dial, which runs detached
// from the first caller's cancellation; dial functions bound themselves
// with their own timeouts.
type handle[T any] struct {
	dial  func(ctx context.Context) (T, error)
	close func(T) error

	mu     sync.Mutex
	client T
	ready  bool
	group  singleflight.Group
}

func newHandle[T any](dial func(context.Context) (T, error), close func(T) error) *handle[T] {
	return &handle[T]{dial: dial, close: close}
}

func (h *handle[T]) get(ctx context.Context) (T, error) {
	h.mu.Lock()
	if h.ready {
		c := h.client
		h.mu.Unlock()
		return c, nil
	}
	h.mu.Unlock()

	v, err, _ := h.group.Do("dial", func() (any, error) {
		h.mu.Lock()
		if h.ready {
			c := h.client
			h.mu.Unlock()
			return c, nil
		}
		h.mu.Unlock()

		c, err := h.dial(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		h.mu.Lock()
		h.client = c
		h.ready = true
		h.mu.Unlock()
		return c, nil
	})
	if err != nil {
		var zero T
		return zero, &dialError{err: err}
	}
	return v.(T), nil
}

// reset drops the cached client so the next get dials again.
func (h *handle[T]) reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ready {
		return nil
	}

	var err error
	if h.close != nil {
		err = h.close(h.client)
	}

	var zero T
	h.client = zero
	h.ready = false
	return err
}

// isNetworkError reports errors that indicate a broken transport rather
// than a rejected operation.
func isNetworkError(err error) bool {
	var de *dialError
	if errors.As(err, &de) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
