package services

import (
	"context"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

// CategoryService manages the category labels used by transactions and
// budgets.
type CategoryService struct {
	store    store.Store
	notifier store.Notifier
	logger   *log.Logger
}

func NewCategoryService(st store.Store, notifier store.Notifier, logger *log.Logger) *CategoryService {
	if notifier == nil {
		notifier = store.NopNotifier{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CategoryService{store: st, notifier: notifier, logger: logger.WithComponent(log.ComponentLedger)}
}

func (s *CategoryService) CreateCategory(ctx context.Context, name string, kind core.Kind) (core.Category, error) {
	c, err := s.store.CreateCategory(ctx, core.Category{Name: name, Kind: kind})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	if err := s.notifier.Publish(ctx, store.Change{Op: store.OpCategoryAdded, CategoryIDs: []string{c.ID}}); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish category change", log.FieldError, err)
	}
	return c, nil
}

// ListCategories returns every category, optionally restricted to one kind.
func (s *CategoryService) ListCategories(ctx context.Context, kind core.Kind) ([]core.Category, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if kind == "" {
		return cats, nil
	}
	out := cats[:0:0]
	for _, c := range cats {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}
