// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbd888/txsentinel/internal/assistant"
	"github.com/mbd888/txsentinel/internal/chain"
	"github.com/mbd888/txsentinel/internal/config"
	"github.com/mbd888/txsentinel/internal/dashboard"
	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/explainer"
	"github.com/mbd888/txsentinel/internal/health"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/ratelimit"
	"github.com/mbd888/txsentinel/internal/realtime"
	"github.com/mbd888/txsentinel/internal/security"
	"github.com/mbd888/txsentinel/internal/validation"
	"github.com/mbd888/txsentinel/internal/wallet"
	"github.com/mbd888/txsentinel/internal/watcher"
)

// Version is reported by /health.
var Version = "dev"

// Model-backed routes cost more rate limit tokens than plain reads.
const aiRouteCost = 3

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	chain       *chain.Source
	wallets     *wallet.Provider
	explainer   *explainer.Guarded
	assembler   *enrich.Assembler
	dashboard   *dashboard.Dashboard
	realtimeHub *realtime.Hub
	heads       *watcher.Watcher
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Injected collaborators (tests, alternative backends)
	ethClient chain.EthClient
	balances  wallet.BalanceReader
	model     explainer.Explainer

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

// WithChainClient replaces the RPC client used to read blocks.
func WithChainClient(client chain.EthClient) Option {
	return func(s *Server) {
		s.ethClient = client
	}
}

// WithBalanceReader replaces the RPC client used to read balances.
func WithBalanceReader(client wallet.BalanceReader) Option {
	return func(s *Server) {
		s.balances = client
	}
}

// WithExplainer replaces the model backend. It is still wrapped with the
// timeout, breaker and speech cache.
func WithExplainer(exp explainer.Explainer) Option {
	return func(s *Server) {
		s.model = exp
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Chain data source
	var chainOpts []chain.Option
	if s.ethClient != nil {
		chainOpts = append(chainOpts, chain.WithClient(s.ethClient))
	}
	src, err := chain.New(chain.Config{
		RPCURL:          cfg.RPCURL,
		ChainID:         cfg.ChainID,
		MaxTransactions: cfg.MaxTxs,
		PlaceholderGas:  cfg.PlaceholderGas,
		FetchReceipts:   cfg.FetchReceipts,
		Timeout:         cfg.RPCTimeout,
	}, s.logger, chainOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain source: %w", err)
	}
	s.chain = src

	// Wallet provider
	var walletOpts []wallet.Option
	if s.balances != nil {
		walletOpts = append(walletOpts, wallet.WithClient(s.balances))
	}
	provider, err := wallet.NewProvider(wallet.Config{RPCURL: cfg.RPCURL, Timeout: cfg.RPCTimeout}, s.logger, walletOpts...)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create wallet provider: %w", err)
	}
	s.wallets = provider

	// AI explainer
	model := s.model
	if model == nil {
		if cfg.AIEnabled() {
			model, err = explainer.NewGemini(ctx, explainer.GeminiConfig{
				APIKey:   cfg.GeminiAPIKey,
				Model:    cfg.GeminiModel,
				TTSModel: cfg.GeminiTTSModel,
				Voice:    cfg.GeminiVoice,
			})
			if err != nil {
				src.Close()
				provider.Close()
				return nil, fmt.Errorf("failed to create Gemini client: %w", err)
			}
			s.logger.Info("AI explainer enabled", "model", cfg.GeminiModel)
		} else {
			model = explainer.Disabled{}
			s.logger.Warn("GEMINI_API_KEY not set, explanations use placeholder text")
		}
	}
	s.explainer = explainer.NewGuarded(model, s.logger, explainer.WithTimeout(cfg.AITimeout))

	// Pipeline
	s.assembler = enrich.New(s.explainer, s.logger, enrich.WithWorkers(cfg.EnrichWorkers))
	s.realtimeHub = realtime.NewHub(s.logger, cfg.CORSOrigins)
	s.realtimeHub.OnAccountsChanged(provider.AccountsChanged)
	s.dashboard = dashboard.New(dashboard.Deps{
		Provider:  provider,
		Source:    src,
		Assembler: s.assembler,
		Assistant: assistant.New(s.explainer, s.logger),
		Explainer: s.explainer,
		Publisher: s.realtimeHub,
	}, assistant.DefaultTranscriptLimit, s.logger)
	if cfg.BlockPollInterval > 0 {
		s.heads = watcher.New(watcher.Config{PollInterval: cfg.BlockPollInterval}, src, func(n uint64) {
			s.realtimeHub.Publish(realtime.EventBlock, gin.H{"number": n})
		}, s.logger)
	}

	// Health checks
	s.health = health.NewRegistry(5 * time.Second)
	s.health.Register("rpc", s.checkRPC)
	s.health.RegisterOptional("ai", s.checkAI)

	// Router
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Per-route middleware uses the limiter; see setupRoutes.
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         max(s.cfg.RateLimitRPM/6, 1),
		CleanupInterval:   time.Minute,
	})
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep an upstream request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// Probes and scrapes are noise.
		if path == "/metrics" || strings.HasPrefix(path, "/health") {
			return
		}

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

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

	s.router.GET("/", dashboardPageHandler)
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	read := s.rateLimiter.Middleware()
	ai := s.rateLimiter.Weighted(aiRouteCost)

	v1 := s.router.Group("/v1")
	{
		v1.GET("/wallet", read, s.getWallet)
		v1.POST("/wallet/connect", ai, s.connectWallet)
		v1.POST("/wallet/accounts", ai, s.accountsChanged)
		v1.DELETE("/wallet", read, s.disconnectWallet)

		v1.GET("/transactions", read, s.listTransactions)
		v1.POST("/transactions/refresh", ai, s.refreshTransactions)
		tx := v1.Group("/transactions/:hash", validation.HashParamMiddleware())
		tx.POST("/simplify", ai, s.simplifyTransaction)
		tx.POST("/speech", ai, s.speakTransaction)

		v1.GET("/chat", read, s.getTranscript)
		v1.POST("/chat", ai, s.postChat)

		v1.POST("/risk/score", read, s.scoreTransaction)
		v1.GET("/addresses/:address/transactions", validation.AddressParamMiddleware(), ai, s.scanAddress)
	}
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse is the /health payload
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) checkRPC(ctx context.Context) health.Status {
	n, err := s.chain.LatestBlockNumber(ctx)
	if err != nil {
		return health.Status{Healthy: false, Detail: err.Error()}
	}
	return health.Status{Healthy: true, Detail: fmt.Sprintf("head %d", n)}
}

func (s *Server) checkAI(context.Context) health.Status {
	if !s.cfg.AIEnabled() && s.model == nil {
		return health.Status{Healthy: false, Detail: "not configured"}
	}
	if open := s.explainer.OpenOperations(); len(open) > 0 {
		return health.Status{Healthy: false, Detail: "circuit open: " + strings.Join(open, ",")}
	}
	return health.Status{Healthy: true}
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, statuses := s.health.CheckAll(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !ok {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Version:   Version,
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

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Refresh explains a whole batch; speech returns audio.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"chain_id", s.cfg.ChainID,
			"ai", s.cfg.AIEnabled(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go metrics.StartRuntimeCollector(runCtx, 15*time.Second)
	if s.heads != nil {
		s.heads.Start(runCtx)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.close()
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

	// Give load balancers time to stop sending traffic
	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		if err = s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}

	s.close()
	s.logger.Info("server stopped")
	return err
}

// close stops background work and releases RPC connections.
func (s *Server) close() {
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	// The watcher is started by Run.
	if s.heads != nil && s.cancelRunCtx != nil {
		s.heads.Stop()
	}
	s.dashboard.Close()
	s.rateLimiter.Stop()
	s.chain.Close()
	s.wallets.Close()
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Dashboard exposes the dashboard state, mostly for tests.
func (s *Server) Dashboard() *dashboard.Dashboard {
	return s.dashboard
}
