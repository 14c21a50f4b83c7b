// Package event is the in-process domain event bus. Listeners are expected
// to be quick (usually they dispatch a queue job) and run synchronously in
// registration order.
//
//	event.Listen(event.OrderPlaced, func(ctx context.Context, p any) error { ... })
//	event.Fire(ctx, event.OrderPlaced, order)
package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/darcho/darcho/pkg/logger"
)

const (
	OrderPlaced        = "order.placed"
	OrderStatusChanged = "order.status_changed"
	MessageSent        = "message.sent"
	FarmerApproved     = "farmer.approved"
)

// Handler receives an event payload.
type Handler func(ctx context.Context, payload any) error

var (
	mu       sync.RWMutex
	handlers = map[string][]Handler{}
)

// Listen registers a handler for name.
func Listen(name string, handler Handler) {
	mu.Lock()
	defer mu.Unlock()
	handlers[name] = append(handlers[name], handler)
}

// Fire runs every listener of name. A failing or panicking listener is
// logged and does not stop the others; the number of failures is returned.
func Fire(ctx context.Context, name string, payload any) int {
	mu.RLock()
	hs := append([]Handler(nil), handlers[name]...)
	mu.RUnlock()

	failed := 0
	for i, h := range hs {
		if err := call(ctx, h, payload); err != nil {
			failed++
			logger.WithCtx(ctx).Error("event: listener failed", "event", name, "listener", i, "error", err)
		}
	}
	return failed
}

func call(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, payload)
}

// Has reports whether name has listeners.
func Has(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(handlers[name]) > 0
}

// Flush removes all listeners. Tests use it between cases.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	handlers = map[string][]Handler{}
}
