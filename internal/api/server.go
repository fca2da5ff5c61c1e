// Package api exposes the engine over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/recorder"
)

// Server serves the query API.
type Server struct {
	engine *engine.Engine
	store  recorder.Recorder
	logger zerolog.Logger

	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the router. store may be a NoopRecorder.
func NewServer(eng *engine.Engine, store recorder.Recorder, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine: eng,
		store:  store,
		logger: logger.With().Str("component", "api").Logger(),
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/v1")
	v1.GET("/symbols", s.handleSymbols)
	v1.GET("/context/:symbol", s.handleContext)
	v1.GET("/candles/:symbol/:timeframe", s.handleCandles)
	v1.GET("/history/:symbol", s.handleHistory)
	v1.GET("/history/:symbol/:timeframe", s.handleHistory)
	v1.GET("/phases/:symbol/:timeframe", s.handlePhases)
	v1.GET("/structure/:symbol/:timeframe", s.handleStructure)
	v1.GET("/stream/:symbol", s.handleStream)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// statusOf maps engine lookup failures to 404 and anything else to 500.
func statusOf(err error) int {
	if errors.Is(err, engine.ErrUnknownSymbol) || errors.Is(err, engine.ErrUnknownTimeframe) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
