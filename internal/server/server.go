// Package server exposes the market engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/server/handler"
	"github.com/openpredict/marketd/internal/server/middleware"
	"github.com/openpredict/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateLimitWindow. Applied only
	// when a limiter is provided to NewServer.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Trades     *handler.TradeHandler
	Positions  *handler.PositionHandler
	Journal    *handler.JournalHandler
	Resolution *handler.ResolutionHandler
}

// Server is the headless HTTP + WebSocket API server for the market engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux. It
// wires up middleware (logging, CORS, auth, rate limiting) and attaches the
// WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market catalog and pricing.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)

	// Trading balance and funding.
	mux.HandleFunc("GET /api/markets/{id}/balance", handlers.Trades.Balance)
	mux.HandleFunc("POST /api/markets/{id}/deposit", handlers.Trades.Deposit)

	// Allocation staging and commit.
	mux.HandleFunc("GET /api/markets/{id}/allocations", handlers.Trades.Allocations)
	mux.HandleFunc("POST /api/markets/{id}/options/{option}/select", handlers.Trades.SelectSide)
	mux.HandleFunc("POST /api/markets/{id}/options/{option}/stage", handlers.Trades.Stage)
	mux.HandleFunc("DELETE /api/markets/{id}/options/{option}/allocation", handlers.Trades.Clear)
	mux.HandleFunc("GET /api/markets/{id}/options/{option}/limits", handlers.Trades.Limits)
	mux.HandleFunc("POST /api/markets/{id}/options/{option}/commit", handlers.Trades.Commit)
	mux.HandleFunc("POST /api/markets/{id}/commit", handlers.Trades.CommitAll)

	// Positions and history.
	mux.HandleFunc("GET /api/markets/{id}/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/markets/{id}/transactions", handlers.Journal.ListByMarket)
	mux.HandleFunc("GET /api/users/{user}/transactions", handlers.Journal.ListByUser)

	// Resolution and redemption.
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Resolution.Resolve)
	mux.HandleFunc("GET /api/markets/{id}/redeem", handlers.Resolution.Redeem)
	mux.HandleFunc("POST /api/markets/{id}/redeem/preview", handlers.Resolution.Preview)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply rate limiting closest to the handlers.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
