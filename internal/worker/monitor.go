package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"ledger/internal/log"
)

// MonitorConfig holds configuration for the periodic budget monitor.
type MonitorConfig struct {
	// Interval is how often every budget is re-evaluated (default: 1h).
	Interval time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{Interval: time.Hour}
}

var ErrMonitorRunning = errors.New("budget monitor is already running")

// Monitor re-evaluates every budget on a ticker so that period rollovers are
// noticed even when no change arrives.
type Monitor struct {
	worker *ChangeWorker
	config MonitorConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMonitor(worker *ChangeWorker, config MonitorConfig, logger *log.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultMonitorConfig().Interval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{worker: worker, config: config, logger: logger.WithComponent(log.ComponentBudget)}
}

// Start begins the evaluation loop. Returns ErrMonitorRunning if already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrMonitorRunning
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.runLoop(ctx)

	m.logger.InfoContext(ctx, "Budget monitor started", "interval", m.config.Interval)
	return nil
}

// Stop signals the loop and waits for it or for ctx.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		m.logger.InfoContext(ctx, "Budget monitor stopped gracefully")
		return nil
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "Budget monitor stop timed out")
		return ctx.Err()
	}
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Run blocks until ctx is done. It suits an errgroup.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Stop(stopCtx)
}

func (m *Monitor) runLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.evaluate(ctx)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evaluate(ctx)
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context) {
	if err := m.worker.Evaluate(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Periodic budget evaluation failed", log.FieldError, err)
	}
}
