package notify

import (
	"context"
	"sync"

	"ledger/internal/log"
	"ledger/internal/store"
)

// Local delivers changes to in-process consumers synchronously. It is used
// when no broker is configured.
type Local struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
	logger   *log.Logger
}

var _ Bus = (*Local)(nil)

func NewLocal(logger *log.Logger) *Local {
	if logger == nil {
		logger = log.Default()
	}
	return &Local{handlers: map[int]Handler{}, logger: logger.WithComponent(log.ComponentWorker)}
}

// Publish runs every registered handler. Handler errors are logged only.
func (l *Local) Publish(ctx context.Context, change store.Change) error {
	msg := NewLedgerChangedMessage(change)
	l.mu.RLock()
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			l.logger.ErrorContext(ctx, "Local handler failed", log.FieldError, err, log.FieldOperation, msg.Op)
		}
	}
	return nil
}

// Subscribe registers handler and returns a function removing it.
func (l *Local) Subscribe(handler Handler) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.handlers[id] = handler
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

// Consume registers handler until ctx is done.
func (l *Local) Consume(ctx context.Context, handler Handler) error {
	unsubscribe := l.Subscribe(handler)
	defer unsubscribe()
	<-ctx.Done()
	return ctx.Err()
}

func (l *Local) Close() error { return nil }
