package task

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle is the cancellation flag for one task. Many readers, one writer:
// whoever calls Cancel. Pipelines observe the flag at safe points and also
// derive a context so in-flight subprocesses die promptly.
type Handle struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewHandle returns an un-cancelled handle.
func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Cancel sets the flag. Safe to call more than once.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancelled.Store(true)
	h.once.Do(func() { close(h.done) })
}

// Cancelled reports whether cancellation has been requested.
func (h *Handle) Cancelled() bool {
	return h != nil && h.cancelled.Load()
}

// Done is closed on the first Cancel.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.done
}

// Bind derives a context that is cancelled when either the parent or the
// handle fires. The returned stop function releases the watcher and must be
// called when the pipeline exits.
func (h *Handle) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if h == nil {
		return ctx, cancel
	}
	if h.Cancelled() {
		cancel()
		return ctx, cancel
	}
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
