package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/server/handler"
	"github.com/BeerCodeIndustry/hyperliquid/internal/server/middleware"
	"github.com/BeerCodeIndustry/hyperliquid/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per minute per client; 0 disables
}

// Handlers aggregates the HTTP handlers. Accounts is nil when no account
// registry is configured.
type Handlers struct {
	Health   *handler.HealthHandler
	Units    *handler.UnitHandler
	Accounts *handler.AccountHandler
}

// Server is the HTTP + WebSocket API of the unit bot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Unit operations wait for every leg, including retries.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	u := handlers.Units
	mux.HandleFunc("POST /api/units", u.CreateUnit)
	mux.HandleFunc("POST /api/units/close", u.CloseUnit)
	mux.HandleFunc("POST /api/units/recreate", u.RecreateUnit)
	mux.HandleFunc("POST /api/units/states", u.States)
	mux.HandleFunc("GET /api/assets/{asset}", u.Asset)

	if a := handlers.Accounts; a != nil {
		mux.HandleFunc("GET /api/accounts", a.ListAccounts)
		mux.HandleFunc("POST /api/accounts", a.CreateAccount)
		mux.HandleFunc("DELETE /api/accounts/{id}", a.DeleteAccount)
		mux.HandleFunc("GET /api/proxies", a.ListProxies)
		mux.HandleFunc("POST /api/proxies", a.CreateProxy)
		mux.HandleFunc("GET /api/batches", a.ListBatches)
		mux.HandleFunc("POST /api/batches", a.CreateBatch)
		mux.HandleFunc("POST /api/batches/{id}/units", u.CreateBatchUnit)
		mux.HandleFunc("POST /api/batches/{id}/units/close", u.CloseBatchUnit)
		mux.HandleFunc("POST /api/batches/{id}/units/recreate", u.RecreateBatchUnit)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute, logger, "/api/health", "/metrics")(h)
	}
	h = middleware.Logging(logger, "/api/health", "/metrics")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
