// Package server exposes the lead agent over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbxark/leadagent/agent"
	"github.com/tbxark/leadagent/types"
)

// ChatService is the part of agent.Service the HTTP layer needs.
type ChatService interface {
	InitSession(ctx context.Context, sessionID string) (*agent.Session, error)
	ProcessTurn(ctx context.Context, sessionID, text string) (*agent.TurnResult, error)
	SelectSlot(ctx context.Context, sessionID, offerID string, index int) (*agent.TurnResult, error)
	History(ctx context.Context, sessionID string) ([]types.Turn, error)
	ResetSession(ctx context.Context, sessionID string) error
}

const shutdownTimeout = 10 * time.Second

type Server struct {
	service ChatService
	logger  *slog.Logger
	timeout time.Duration
	limiter *IPRateLimiter
	engine  *gin.Engine
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestTimeout bounds every request context, model calls included.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithRateLimit limits each client IP to r requests per second. A zero rate
// disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return func(s *Server) {
		if r <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = NewIPRateLimiter(rate.Limit(r), burst)
	}
}

func New(service ChatService, opts ...Option) *Server {
	s := &Server{
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.limiter != nil {
		s.limiter.logger = s.logger
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.logger))
	r.GET("/healthz", s.health)

	api := r.Group("/api/chat")
	if s.limiter != nil {
		api.Use(s.limiter.RateLimit())
	}
	if s.timeout > 0 {
		api.Use(Timeout(s.timeout))
	}
	api.POST("/sessions", s.createSession)
	api.POST("/sessions/:id", s.initSession)
	api.DELETE("/sessions/:id", s.resetSession)
	api.GET("/sessions/:id/messages", s.listMessages)
	api.POST("/sessions/:id/messages", s.sendMessage)
	api.POST("/sessions/:id/slots", s.selectSlot)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
