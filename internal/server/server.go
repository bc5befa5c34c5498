// Package server wires the scoring pipeline behind an HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/okanzdmr/fraudgate/internal/audit"
	"github.com/okanzdmr/fraudgate/internal/circuitbreaker"
	"github.com/okanzdmr/fraudgate/internal/config"
	"github.com/okanzdmr/fraudgate/internal/decision"
	"github.com/okanzdmr/fraudgate/internal/ensemble"
	"github.com/okanzdmr/fraudgate/internal/feature"
	"github.com/okanzdmr/fraudgate/internal/health"
	"github.com/okanzdmr/fraudgate/internal/idgen"
	"github.com/okanzdmr/fraudgate/internal/logging"
	"github.com/okanzdmr/fraudgate/internal/metrics"
	"github.com/okanzdmr/fraudgate/internal/pipeline"
	"github.com/okanzdmr/fraudgate/internal/ratelimit"
	"github.com/okanzdmr/fraudgate/internal/realtime"
	"github.com/okanzdmr/fraudgate/internal/rules"
	"github.com/okanzdmr/fraudgate/internal/security"
	"github.com/okanzdmr/fraudgate/internal/transaction"
	"github.com/okanzdmr/fraudgate/internal/validation"
)

// Server is the fraud scoring API server.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db           *sql.DB
	orchestrator *pipeline.Orchestrator
	ledger       *audit.Ledger
	history      transaction.HistoryStore
	verifyTimer  *audit.VerifyTimer
	hub          *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry

	router  *gin.Engine
	httpSrv *http.Server

	cancelRunCtx context.CancelFunc
	ready        atomic.Bool
	healthy      atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server with all pipeline stages wired.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		format := "text"
		if cfg.IsProduction() {
			format = "json"
		}
		s.logger = logging.New(cfg.LogLevel, format)
	}

	// Stores: Postgres when configured, in-memory otherwise
	var auditStore audit.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.db = db

		pgAudit := audit.NewPostgresStore(db)
		if err := pgAudit.Migrate(context.Background()); err != nil {
			s.logger.Warn("failed to migrate audit store", "error", err)
		}
		auditStore = pgAudit

		pgHistory := transaction.NewPostgresHistoryStore(db)
		if err := pgHistory.Migrate(context.Background()); err != nil {
			s.logger.Warn("failed to migrate history store", "error", err)
		}
		s.history = pgHistory

		s.logger.Info("using PostgreSQL stores", "dsn", maskDSN(cfg.DatabaseURL))
	} else {
		auditStore = audit.NewMemoryStore()
		s.history = transaction.NewMemoryHistoryStore()
		s.logger.Info("using in-memory stores (set DATABASE_URL for persistence)")
	}

	s.ledger = audit.NewLedger(auditStore)
	s.verifyTimer = audit.NewVerifyTimer(s.ledger, 5*time.Minute, s.logger)

	// Realtime hub for decision streaming
	s.hub = realtime.NewHub(s.logger)

	// Scoring pipeline
	engine := rules.NewEngine(
		rules.DefaultRules(cfg.MaxTransactionAmount, cfg.SuspiciousAmount, cfg.HighAmount, cfg.Blacklist),
		time.Duration(cfg.RuleTimeoutMs)*time.Millisecond,
	)

	weights := cfg.ModelWeights
	if len(weights) == 0 {
		weights = config.DefaultModelWeights()
	}
	registry := ensemble.NewStaticRegistry(ensemble.DefaultModels(time.Now())...)
	scorer := ensemble.NewScorer(
		registry,
		weights,
		cfg.MinModelQuorum,
		time.Duration(cfg.ModelTimeoutMs)*time.Millisecond,
		ensemble.WithBreaker(circuitbreaker.New(3, 15*time.Second)),
		ensemble.WithMaxModelAge(time.Duration(cfg.ModelMaxAgeDays)*24*time.Hour),
	)

	policy := decision.Policy{AllowBelow: cfg.AllowBelow, BlockAbove: cfg.BlockAbove}

	s.orchestrator = pipeline.New(
		feature.NewExtractor(),
		engine,
		scorer,
		s.ledger,
		s.history,
		policy,
		pipeline.WithBudget(time.Duration(cfg.RequestBudgetMs)*time.Millisecond),
		pipeline.WithMissingHistoryPolicy(pipeline.MissingHistoryPolicy(cfg.OnMissingHistory)),
		pipeline.WithDecisionHook(s.hub.BroadcastDecision),
	)

	// Health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	s.checks.RegisterBool("audit_chain", s.verifyTimer.Healthy, "hash chain verification failed")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Service info
	s.router.GET("/", s.infoHandler)

	// WebSocket for real-time decision streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")

	v1.POST("/score", s.scoreHandler)
	v1.POST("/score/batch", s.scoreBatchHandler)

	v1.GET("/audit/:transactionId", s.auditLookupHandler)
	v1.GET("/audit", s.auditListHandler)
	v1.POST("/audit/verify", s.auditVerifyHandler)

	v1.GET("/stats", s.statsHandler)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start the periodic chain verification timer
	go s.verifyTimer.Start(runCtx)

	// Export database pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, verify timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop chain verification timer
	s.verifyTimer.Stop()
	s.logger.Info("verify timer stopped")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
