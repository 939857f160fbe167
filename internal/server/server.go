// Package server exposes the engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wavemint/wavemint/internal/domain"
	"github.com/wavemint/wavemint/internal/server/handler"
	"github.com/wavemint/wavemint/internal/server/middleware"
	"github.com/wavemint/wavemint/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit applies per-client-IP limiting when a limiter is attached.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Curves  *handler.CurveHandler
	Quotes  *handler.QuoteHandler
	Trades  *handler.TradeHandler
	Vesting *handler.VestingHandler
	Export  *handler.ExportHandler
}

// Server is the headless HTTP + WebSocket API for the curve engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, auth, logging, CORS) wired around it.
// limiter is optional; without it the per-IP guard is skipped.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (no auth required for health).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Health.GetStatus)

	// Curve endpoints.
	mux.HandleFunc("POST /api/curves", handlers.Curves.RegisterCurve)
	mux.HandleFunc("GET /api/curves", handlers.Curves.ListCurves)
	mux.HandleFunc("GET /api/curves/{mint}", handlers.Curves.GetCurve)
	mux.HandleFunc("GET /api/curves/{mint}/trades", handlers.Curves.ListCurveTrades)
	mux.HandleFunc("GET /api/curves/{mint}/price", handlers.Quotes.GetPrice)

	// Quote endpoint.
	mux.HandleFunc("GET /api/quote", handlers.Quotes.GetQuote)

	// Trade endpoints.
	mux.HandleFunc("POST /api/trades", handlers.Trades.SubmitTrade)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)

	// Vesting endpoints.
	mux.HandleFunc("GET /api/vesting", handlers.Vesting.ListSchedules)
	mux.HandleFunc("GET /api/vesting/{id}", handlers.Vesting.GetSchedule)
	mux.HandleFunc("POST /api/vesting/{id}/claim", handlers.Vesting.Claim)

	// Creator earnings.
	mux.HandleFunc("GET /api/earnings/{creator}", handlers.Curves.GetEarnings)

	// Ledger export trigger.
	if handlers.Export != nil {
		mux.HandleFunc("POST /api/export/trigger", handlers.Export.TriggerExport)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
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
