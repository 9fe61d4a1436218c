package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server provides the HTTP interface for the challenge engine.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewRouter builds the chi router with all routes registered.
func NewRouter(logger *zap.Logger, handler *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/", handler.HomeHandler)
	r.Get("/price/{ticker}", handler.PriceHandler)
	r.Post("/start_challenge", handler.StartChallengeHandler)
	r.Post("/trade", handler.TradeHandler)
	r.Get("/account", handler.AccountHandler)

	return r
}

// NewServer creates a Server around the router.
func NewServer(port int, logger *zap.Logger, handler *Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: NewRouter(logger, handler),
		},
		logger: logger.Named("http"),
	}
}

// Start runs the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping web server...")
	return s.server.Shutdown(ctx)
}

// requestLogger logs every request with method, path, status and duration.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("Request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
