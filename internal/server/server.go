// Package server sets up the HTTP server with all routes
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
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/transflow/riskd/internal/alerts"
	"github.com/transflow/riskd/internal/circuitbreaker"
	"github.com/transflow/riskd/internal/config"
	"github.com/transflow/riskd/internal/engine"
	"github.com/transflow/riskd/internal/health"
	"github.com/transflow/riskd/internal/idgen"
	"github.com/transflow/riskd/internal/logging"
	"github.com/transflow/riskd/internal/metrics"
	"github.com/transflow/riskd/internal/ml"
	"github.com/transflow/riskd/internal/profile"
	"github.com/transflow/riskd/internal/ratelimit"
	"github.com/transflow/riskd/internal/realtime"
	"github.com/transflow/riskd/internal/security"
	"github.com/transflow/riskd/internal/traces"
	"github.com/transflow/riskd/internal/transactions"
	"github.com/transflow/riskd/internal/validation"
	"github.com/transflow/riskd/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	engine       *engine.Engine
	profiles     *profile.Registry
	alerts       *alerts.Service
	transactions *transactions.Service
	emitter      *webhooks.Emitter
	webhookStore webhooks.Store
	realtimeHub  *realtime.Hub
	scorer       ml.Scorer
	scorerMode   string
	checks       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownOTEL func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScorer sets a custom ML scorer (for testing)
func WithScorer(scorer ml.Scorer) Option {
	return func(s *Server) {
		s.scorer = scorer
		s.scorerMode = "custom"
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set scorer/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		profileStore profile.Store
		alertStore   alerts.Store
		txStore      transactions.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		pgProfiles := profile.NewPostgresStore(db)
		if err := pgProfiles.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate profile store", "error", err)
		}
		profileStore = pgProfiles

		pgAlerts := alerts.NewPostgresStore(db)
		if err := pgAlerts.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate alert store", "error", err)
		}
		alertStore = pgAlerts

		pgTx := transactions.NewPostgresStore(db)
		if err := pgTx.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transaction store", "error", err)
		}
		txStore = pgTx

		pgWebhooks := webhooks.NewPostgresStore(db)
		if err := pgWebhooks.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = pgWebhooks

		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		profileStore = profile.NewMemoryStore()
		alertStore = alerts.NewMemoryStore()
		txStore = transactions.NewMemoryStore()
		s.webhookStore = webhooks.NewMemoryStore()
	}

	// Customer risk profiles
	s.profiles = profile.NewRegistry(profileStore)

	// ML scorer: remote service behind a circuit breaker if configured,
	// otherwise the built-in logistic model
	if s.scorer == nil {
		if cfg.MLServiceURL != "" {
			breaker := circuitbreaker.New(cfg.MLBreakerTrips, cfg.MLBreakerCooloff)
			client := ml.NewClient(cfg.MLServiceURL, cfg.MLModelVersion, cfg.MLTimeout, breaker)
			s.scorer = client
			s.scorerMode = "remote"
			s.checks.Register("ml-scorer", func(_ context.Context) health.Status {
				st := client.CircuitState()
				return health.Status{
					Name:    "ml-scorer",
					Healthy: st != circuitbreaker.StateOpen,
					Detail:  "circuit " + st.String(),
				}
			})
			s.logger.Info("ML scoring via remote service",
				"url", cfg.MLServiceURL,
				"model_version", cfg.MLModelVersion,
				"timeout", cfg.MLTimeout,
			)
		} else {
			s.scorer = ml.NewBuiltinScorer()
			s.scorerMode = "builtin"
			s.logger.Info("ML scoring via built-in model")
		}
	}

	// Alert pipeline with notifiers
	s.alerts = alerts.NewService(alertStore, alerts.DefaultPolicy(), s.logger)

	s.emitter = webhooks.NewEmitter(webhooks.NewDispatcher(s.webhookStore), s.logger)
	s.alerts.AddNotifier(s.emitter)

	s.realtimeHub = realtime.NewHub(s.logger)
	s.alerts.AddNotifier(s.realtimeHub)
	s.logger.Info("realtime streaming enabled")

	// Transaction records for the query/statistics surface
	s.transactions = transactions.NewService(txStore, s.logger)

	// Decision engine
	s.engine = engine.New(s.profiles, s.scorer, engineConfig(cfg), s.logger).
		WithAlertSink(s.alerts)

	// Tracing (no-op without an OTLP endpoint)
	shutdown, err := traces.Init(ctx, "riskd", cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownOTEL = shutdown
		if cfg.OTLPEndpoint != "" {
			s.logger.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint)
		}
	}

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

// engineConfig maps environment-driven settings onto engine tuning.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Rule: engine.RuleConfig{
			HighAmount:     cfg.HighAmountThreshold,
			NewAccountDays: cfg.NewAccountDays,
			NightHourStart: cfg.NightHourStart,
			NightHourEnd:   cfg.NightHourEnd,
			ATMAmount:      cfg.ATMAmountThreshold,
		},
		Behavioral: engine.BehavioralConfig{
			MinSamples: int64(cfg.BehavioralMinSamples),
			ZThreshold: cfg.BehavioralZThreshold,
			HourMargin: cfg.BehavioralHourMargin,
		},
		Velocity: engine.VelocityConfig{
			BurstWindow:    cfg.VelocityBurstWindow,
			BurstCap:       cfg.VelocityBurstCap,
			HourlyCap:      cfg.VelocityHourlyCap,
			DailyAmountCap: cfg.VelocityDailyAmount,
		},
		Aggregation: engine.AggregationConfig{
			WeightML:          cfg.WeightML,
			WeightFlags:       cfg.WeightFlags,
			FlagNormalizer:    float64(cfg.FlagNormalizer),
			MediumThreshold:   cfg.MediumThreshold,
			HighThreshold:     cfg.HighThreshold,
			CriticalThreshold: cfg.CriticalLevel,
			FallbackBase:      engine.DefaultAggregationConfig().FallbackBase,
			FallbackPerFlag:   engine.DefaultAggregationConfig().FallbackPerFlag,
			FallbackCap:       engine.DefaultAggregationConfig().FallbackCap,
		},
		MLTimeout: cfg.MLTimeout,
	}
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

	// CORS for the monitoring dashboard
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS * 2
	}
	s.rateLimiter = ratelimit.New(rlCfg)
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
			requestID = idgen.New()
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

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Evaluation
	v1.POST("/evaluate", s.evaluateHandler)
	v1.POST("/evaluate/batch", s.evaluateBatchHandler)
	v1.GET("/model", s.modelHandler)

	// Alert lifecycle
	alerts.NewHandler(s.alerts).RegisterRoutes(v1)

	// Decision records and statistics
	transactions.NewHandler(s.transactions).RegisterRoutes(v1)

	// Customer profiles
	profile.NewHandler(s.profiles).RegisterRoutes(v1)

	// Webhook subscriptions
	webhooks.NewHandler(s.webhookStore).RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "riskd",
		"description": "Real-time transaction risk decisioning",
		"version":     "0.1.0",
	})
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
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"scorer", s.scorerMode,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

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

	// Cancel the context for background goroutines (realtime hub)
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

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownOTEL != nil {
		if err := s.shutdownOTEL(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
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
