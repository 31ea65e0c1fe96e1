package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

// SettingsStore is the part of store.Store the settings provider needs.
type SettingsStore interface {
	CurrencySettings(ctx context.Context) (core.CurrencySettings, bool, error)
	SaveCurrencySettings(ctx context.Context, s core.CurrencySettings) error
}

// SettingsProvider re-reads currency settings from the store on every call.
// Concurrent reads share one store round trip.
type SettingsProvider struct {
	store    SettingsStore
	notifier store.Notifier
	inflight singleflight.Group
	logger   *log.Logger
}

var _ store.SettingsProvider = (*SettingsProvider)(nil)

func NewSettingsProvider(st SettingsStore, notifier store.Notifier, logger *log.Logger) *SettingsProvider {
	if notifier == nil {
		notifier = store.NopNotifier{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SettingsProvider{store: st, notifier: notifier, logger: logger.WithComponent(log.ComponentReports)}
}

// CurrencySettings returns the saved settings or the defaults when nothing
// was saved yet. Every caller gets its own copy of the rate table.
func (p *SettingsProvider) CurrencySettings(ctx context.Context) (core.CurrencySettings, error) {
	if err := ctx.Err(); err != nil {
		return core.CurrencySettings{}, fmt.Errorf("load currency settings: %w", err)
	}
	v, err, _ := p.inflight.Do("currency-settings", func() (any, error) {
		// The fetch is shared, so one caller going away must not fail the others.
		s, ok, err := p.store.CurrencySettings(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if !ok {
			return core.DefaultCurrencySettings(), nil
		}
		return s, nil
	})
	if err != nil {
		return core.CurrencySettings{}, fmt.Errorf("load currency settings: %w", err)
	}
	return v.(core.CurrencySettings).Clone(), nil
}

func (p *SettingsProvider) Save(ctx context.Context, s core.CurrencySettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := p.store.SaveCurrencySettings(ctx, s); err != nil {
		return fmt.Errorf("save currency settings: %w", err)
	}
	p.logger.InfoContext(ctx, "Currency settings saved", log.FieldOperation, log.OpUpdate, log.FieldCurrency, s.Base)
	if err := p.notifier.Publish(ctx, store.Change{Op: store.OpSettingsSaved}); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish settings change", log.FieldError, err)
	}
	return nil
}
