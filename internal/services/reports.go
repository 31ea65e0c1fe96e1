package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/aggregate"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/currency"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/store"
)

type (
	SummaryReport struct {
		Base    core.Currency
		Period  core.Period
		Start   time.Time // zero for core.PeriodAll
		Summary aggregate.Summary
	}

	CategoryShare struct {
		aggregate.CategoryTotal
		Share decimal.Decimal // ratio of the kind's total
	}

	CategoryReport struct {
		Base       core.Currency
		Kind       core.Kind
		Categories []CategoryShare
		Total      decimal.Decimal
	}

	AccountReport struct {
		Base     core.Currency
		Accounts []aggregate.AccountTotal
	}

	TrendReport struct {
		Base   core.Currency
		Points []aggregate.TrendPoint
	}

	BalanceReport struct {
		Base       core.Currency
		Total      decimal.Decimal
		ByCurrency []aggregate.CurrencyBalance
		// Unconvertible lists currencies without a usable rate; their
		// balances are counted unconverted in Total.
		Unconvertible []core.Currency
	}
)

// ReportService runs the aggregation engine over a fresh store snapshot and
// caches the results until the store version moves or a change is
// published.
type ReportService struct {
	reader   store.Reader
	settings store.SettingsProvider
	cache    *cache.LRUCache[any]
	now      func() time.Time
	logger   *log.Logger
}

func NewReportService(reader store.Reader, settings store.SettingsProvider, c *cache.LRUCache[any], logger *log.Logger) *ReportService {
	if c == nil {
		c = cache.NewLRUCache[any](128, 5*time.Minute)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReportService{
		reader:   reader,
		settings: settings,
		cache:    c,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentReports),
	}
}

// Invalidate drops every cached report.
func (r *ReportService) Invalidate() {
	r.cache.Purge()
}

// HandleChange is a notify.Handler that invalidates the cache.
func (r *ReportService) HandleChange(ctx context.Context, msg *notify.LedgerChangedMessage) error {
	r.Invalidate()
	r.logger.DebugContext(ctx, "Report cache invalidated", log.FieldOperation, msg.Op)
	return nil
}

// Transactions returns the transactions of the period, newest first.
func (r *ReportService) Transactions(ctx context.Context, period core.Period, anchor time.Time) ([]core.Transaction, error) {
	txs, err := r.reader.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := aggregate.FilterByPeriod(txs, period, anchor)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	r.logger.DebugContext(ctx, "Transactions listed", log.FieldOperation, log.OpList, log.FieldPeriod, period, "count", len(out))
	return out, nil
}

func (r *ReportService) Summary(ctx context.Context, period core.Period, anchor time.Time) (SummaryReport, error) {
	return cached(ctx, r, key("summary", period, anchor), func(s core.CurrencySettings, txs []core.Transaction) (SummaryReport, error) {
		start, _, _ := aggregate.Window(period, anchor)
		return SummaryReport{
			Base:    s.Base,
			Period:  period,
			Start:   start,
			Summary: aggregate.Summarize(aggregate.FilterByPeriod(txs, period, anchor), s),
		}, nil
	})
}

func (r *ReportService) Categories(ctx context.Context, period core.Period, anchor time.Time, kind core.Kind) (CategoryReport, error) {
	if !kind.Valid() {
		return CategoryReport{}, fmt.Errorf("%w: unknown transaction kind %q", core.ErrInvalidInput, kind)
	}
	return cached(ctx, r, key("categories:"+string(kind), period, anchor), func(s core.CurrencySettings, txs []core.Transaction) (CategoryReport, error) {
		groups := aggregate.GroupByCategory(aggregate.FilterByPeriod(txs, period, anchor), kind, s)
		total := decimal.Zero
		for _, g := range groups {
			total = total.Add(g.Total)
		}
		shares := make([]CategoryShare, len(groups))
		for i, g := range groups {
			shares[i] = CategoryShare{CategoryTotal: g, Share: aggregate.PercentageOfTotal(g.Total, total)}
		}
		return CategoryReport{Base: s.Base, Kind: kind, Categories: shares, Total: total}, nil
	})
}

func (r *ReportService) Accounts(ctx context.Context, period core.Period, anchor time.Time) (AccountReport, error) {
	return cached(ctx, r, key("accounts", period, anchor), func(s core.CurrencySettings, txs []core.Transaction) (AccountReport, error) {
		return AccountReport{Base: s.Base, Accounts: aggregate.GroupByAccount(aggregate.FilterByPeriod(txs, period, anchor), s)}, nil
	})
}

// Trend covers months calendar months ending with the current one.
func (r *ReportService) Trend(ctx context.Context, months int) (TrendReport, error) {
	now := r.now()
	return cached(ctx, r, fmt.Sprintf("trend:%d:%s", months, now.Format("2006-01")), func(s core.CurrencySettings, txs []core.Transaction) (TrendReport, error) {
		return TrendReport{Base: s.Base, Points: aggregate.MonthlyTrend(txs, s, months, now)}, nil
	})
}

// Balances is not cached: balances change with every mutation.
func (r *ReportService) Balances(ctx context.Context) (BalanceReport, error) {
	s, err := r.settings.CurrencySettings(ctx)
	if err != nil {
		return BalanceReport{}, err
	}
	accounts, err := r.reader.ListAccounts(ctx)
	if err != nil {
		return BalanceReport{}, fmt.Errorf("list accounts: %w", err)
	}
	report := BalanceReport{
		Base:       s.Base,
		Total:      aggregate.TotalBalance(accounts, s),
		ByCurrency: aggregate.BalancesByCurrency(accounts),
	}
	for _, b := range report.ByCurrency {
		if !currency.CanConvert(b.Currency, s) {
			report.Unconvertible = append(report.Unconvertible, b.Currency)
		}
	}
	return report, nil
}

// cachedReport remembers the store version a report was computed at.
type cachedReport struct {
	version string
	report  any
}

// cached serves k from the cache while the store version is unchanged.
// Otherwise it loads settings and transactions, computes the report and
// stores it unless the cache was invalidated in the meantime.
func cached[T any](ctx context.Context, r *ReportService, k string, compute func(core.CurrencySettings, []core.Transaction) (T, error)) (T, error) {
	var zero T
	version, err := r.reader.Version(ctx)
	if err != nil {
		return zero, fmt.Errorf("read store version: %w", err)
	}
	if v, ok := r.cache.Get(k); ok {
		if entry, ok := v.(cachedReport); ok && entry.version == version {
			if report, ok := entry.report.(T); ok {
				return report, nil
			}
		}
	}

	gen := r.cache.Generation()
	s, err := r.settings.CurrencySettings(ctx)
	if err != nil {
		return zero, err
	}
	txs, err := r.reader.ListTransactions(ctx)
	if err != nil {
		return zero, fmt.Errorf("list transactions: %w", err)
	}
	report, err := compute(s, txs)
	if err != nil {
		return zero, err
	}
	r.logger.DebugContext(ctx, "Report computed", log.FieldOperation, log.OpRead, "report", k, "version", version)
	r.cache.SetIfGeneration(k, cachedReport{version: version, report: report}, gen)
	return report, nil
}

func key(kind string, period core.Period, anchor time.Time) string {
	start, _, bounded := aggregate.Window(period, anchor)
	if !bounded {
		return kind + ":" + string(period)
	}
	return kind + ":" + string(period) + ":" + start.Format(time.RFC3339)
}
