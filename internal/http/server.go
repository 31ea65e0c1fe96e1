package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
	"ledger/internal/store"
)

// Deps are the services the API exposes.
type Deps struct {
	Ledger     *ledger.Service
	Reader     store.Reader
	Reports    *services.ReportService
	Budgets    *services.BudgetService
	Categories *services.CategoryService
	Settings   *services.SettingsProvider
	Logger     *log.Logger
}

// Options tune the middleware chain.
type Options struct {
	Limits ratelimit.Config
	// Proxies resolves the client address used as the rate limit key.
	// Nil trusts security.DefaultTrustedProxies.
	Proxies *security.ProxyResolver
	// Headers defaults to security.DefaultHeadersConfig.
	Headers *security.HeadersConfig
}

type Server struct {
	http.Server
	deps     Deps
	validate *validator.Validate
	limiter  *ratelimit.Limiter
	proxies  *security.ProxyResolver
	tracer   *trace.Middleware
	logger   *log.Logger
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires the routes behind request tracing, a request scoped
// logger, the access log, security headers and the per-client rate limiter.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	if opts.Proxies == nil {
		// the default CIDRs are constants and always parse
		opts.Proxies, _ = security.NewProxyResolver()
	}
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	s := &Server{
		deps:     deps,
		validate: newValidator(),
		limiter:  ratelimit.NewLimiter(opts.Limits),
		proxies:  opts.Proxies,
		tracer:   trace.NewMiddleware(),
		logger:   logger,
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("POST /api/accounts/{id}/deposit", s.handleMutation)
	mux.HandleFunc("POST /api/accounts/{id}/withdraw", s.handleMutation)

	mux.HandleFunc("POST /api/transfers", s.handleTransfer)
	mux.HandleFunc("GET /api/transfers/{id}", s.handleGetTransfer)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)

	mux.HandleFunc("GET /api/reports/summary", s.handleSummary)
	mux.HandleFunc("GET /api/reports/categories", s.handleCategoryReport)
	mux.HandleFunc("GET /api/reports/accounts", s.handleAccountReport)
	mux.HandleFunc("GET /api/reports/trend", s.handleTrend)
	mux.HandleFunc("GET /api/reports/balances", s.handleBalances)

	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("GET /api/budgets/status", s.handleBudgetStatus)

	mux.HandleFunc("GET /api/settings/currency", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings/currency", s.handlePutSettings)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.proxies.ClientIP)(h)
	h = security.Headers(headers)(h)
	h = log.AccessLog(s.proxies.Address)(h)
	h = log.RequestIDMiddleware(trace.FromRequest)(h)
	h = log.Middleware(logger)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		m := s.tracer.GetMetrics()
		s.logger.InfoContext(ctx, "HTTP server shutting down",
			log.FieldOperation, log.OpShutdown,
			"total_requests", m.TotalRequests,
			"server_errors", m.ServerErrors,
			"rate_limited", s.limiter.GetMetrics().RejectedRequests,
			"untrusted_forwards", s.proxies.UntrustedForwards())
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
