// Package bus is an in-process command/query mediator.
//
// Each command or query type has exactly one handler. Handlers are registered
// once at startup and dispatched by the static type of the message.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

var (
	// ErrNoHandler is returned when a message type has no registered handler.
	ErrNoHandler = errors.New("bus: no handler registered")
	// ErrHandlerType is returned when the registered handler's result type does not match.
	ErrHandlerType = errors.New("bus: handler result type mismatch")
)

// Handler handles a single message type M and produces R.
type Handler[M any, R any] func(ctx context.Context, msg M) (R, error)

// Bus routes messages to their handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]any
	logger   *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[reflect.Type]any),
		logger:   logger.With("component", "bus"),
	}
}

// Register binds h to message type M. Registering a second handler for the
// same type panics, as that is a wiring bug.
func Register[M any, R any](b *Bus, h Handler[M, R]) {
	t := reflect.TypeFor[M]()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[t]; exists {
		panic(fmt.Sprintf("bus: handler for %s already registered", t))
	}
	b.handlers[t] = h
}

// Dispatch runs the handler registered for M. A panicking handler is reported
// as an error instead of crashing the caller.
func Dispatch[M any, R any](ctx context.Context, b *Bus, msg M) (result R, err error) {
	t := reflect.TypeFor[M]()

	b.mu.RLock()
	raw, ok := b.handlers[t]
	b.mu.RUnlock()
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrNoHandler, t)
	}

	h, ok := raw.(Handler[M, R])
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrHandlerType, t)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", "message", t.String(), "panic", r)
			err = fmt.Errorf("bus: handler for %s panicked: %v", t, r)
		}
		b.logger.Debug("message dispatched",
			"message", t.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
	}()

	return h(ctx, msg)
}

// Registered reports how many message types have handlers.
func (b *Bus) Registered() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
