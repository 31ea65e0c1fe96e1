package notify

import (
	"context"
	"errors"

	"ledger/internal/store"
)

// Multi publishes every change to each notifier in order. It returns the
// joined errors of the notifiers that failed; the others still receive the
// change.
type Multi []store.Notifier

func (m Multi) Publish(ctx context.Context, change store.Change) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
