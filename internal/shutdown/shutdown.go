// Package shutdown coordinates graceful teardown of the server and any
// in-flight scans on SIGINT/SIGTERM.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Callback is one teardown step. The context carries the shutdown
// deadline.
type Callback func(ctx context.Context) error

// Handler owns the process shutdown sequence. Callbacks run in reverse
// registration order so dependents close before their dependencies.
type Handler struct {
	mu            sync.Mutex
	callbacks     []Callback
	callbackNames []string

	shuttingDown atomic.Bool
	done         chan struct{}
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal

	onDone func(elapsed time.Duration, errs []error)
}

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	OnDone  func(elapsed time.Duration, errs []error)
}

// New creates a handler and starts listening for the configured signals.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		onDone:  cfg.OnDone,
	}
	signal.Notify(h.sigChan, cfg.Signals...)
	return h
}

// Register adds a named teardown step.
func (h *Handler) Register(name string, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, cb)
	h.callbackNames = append(h.callbackNames, name)
}

// RegisterFunc adds a teardown step with no error or context.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled the moment shutdown begins. Long-running work
// should derive from it.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Done is closed when all callbacks have finished.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until a signal arrives, then runs the shutdown sequence.
func (h *Handler) Wait() {
	select {
	case <-h.sigChan:
		h.Shutdown()
	case <-h.ctx.Done():
	}
	<-h.done
}

// Trigger injects a shutdown signal programmatically.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown runs callbacks in LIFO order under the configured timeout.
// Safe to call more than once.
func (h *Handler) Shutdown() {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	start := time.Now()
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	callbacks := append([]Callback(nil), h.callbacks...)
	names := append([]string(nil), h.callbackNames...)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := h.runCallback(ctx, names[i], callbacks[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if h.onDone != nil {
		h.onDone(time.Since(start), errs)
	}
	close(h.done)
}

func (h *Handler) runCallback(ctx context.Context, name string, cb Callback) error {
	done := make(chan error, 1)
	go func() { done <- cb(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// TimeoutError marks a callback that outlived the shutdown deadline.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
