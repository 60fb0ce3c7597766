package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ledger/internal/cache"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// snapshotTimeout bounds how long a snapshot request waits for a view's first value.
const snapshotTimeout = 5 * time.Second

// Options configures the HTTP server. Zero values pick defaults.
type Options struct {
	Logger     *slog.Logger
	RateLimit  ratelimit.Config
	Headers    *security.HeadersConfig
	SessionTTL time.Duration
}

type appMetrics struct {
	recordsCreated     atomic.Int64
	duplicatesRejected atomic.Int64
	uptime             time.Time
}

// Server exposes the record service and live views over JSON and
// Server-Sent Events.
type Server struct {
	http.Server
	records  *services.RecordService
	views    *services.ViewService
	sessions *sessionRegistry

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	logger     *applog.Logger
	events     *applog.StructuredLogger
	appMetrics *appMetrics

	closing      chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, records *services.RecordService, views *services.ViewService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	logger := applog.Wrap(opts.Logger, applog.ComponentHTTP)
	s := &Server{
		records:          records,
		views:            views,
		sessions:         newSessionRegistry(views.NewSession, opts.SessionTTL),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: security.NewDetector(),
		logger:           logger,
		events:           applog.NewStructuredLogger(logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
		closing:          make(chan struct{}),
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, opts.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /debug/cache", s.handleDebugCache)

	mux.HandleFunc("POST /records", s.handleCreateRecord)
	mux.HandleFunc("GET /records", s.handleListRecords)
	mux.HandleFunc("GET /records/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /records/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /records/{id}", s.handleDeleteRecord)

	mux.HandleFunc("GET /views/list", s.handleListView)
	mux.HandleFunc("GET /views/totals", s.handleTotalsView)
	mux.HandleFunc("GET /views/report", s.handleReportView)
	mux.HandleFunc("GET /views/today", s.handleTodayView)
	mux.HandleFunc("GET /views/list/stream", s.handleListStream)
	mux.HandleFunc("GET /views/report/stream", s.handleReportStream)
	mux.HandleFunc("GET /views/today/stream", s.handleTodayStream)

	mux.HandleFunc("POST /session/params", s.handleSessionParams)
	mux.HandleFunc("GET /session/list/stream", s.handleSessionStream)
	mux.HandleFunc("DELETE /session", s.handleSessionClose)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(headers).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Cleaners returns the registries owned by the server that a cache.Manager
// should prune.
func (s *Server) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{s.sessions}
}

// Shutdown ends open streams and sessions, then shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.closing)
		s.rateLimiter.Stop()
		s.sessions.closeAll()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleRateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
		Header("Retry-After", "60").
		Send(w)
}
