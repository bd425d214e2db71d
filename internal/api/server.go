package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/changesmith/internal/api/auth"
	"github.com/changesmith/internal/config"
)

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	port     int
	engine   ChatEngine
	activity ActivitySource
	tokens   *auth.TokenService
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, engine ChatEngine, activity ActivitySource) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:     e,
		port:     cfg.Port,
		engine:   engine,
		activity: activity,
		tokens:   auth.NewTokenService(cfg.JWTSecret, 24*time.Hour),
	}

	server.setupRoutes(cfg.APIKeys)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(apiKeys []string) {
	// Health check endpoint, unauthenticated
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group
	v1 := s.echo.Group("/api/v1")
	v1.Use(auth.RequireAuth(s.tokens, apiKeys))

	v1.POST("/chat", s.handleChat)
	v1.GET("/threads", s.listThreads)
	v1.GET("/threads/:id", s.getThread)
	v1.DELETE("/threads/:id", s.deleteThread)
	v1.GET("/stats", s.getStats)
	v1.GET("/openapi.json", s.getOpenAPISpec)
	v1.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
}

// Handler exposes the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Tokens exposes the server's token service so the CLI can mint tokens with
// the same secret.
func (s *Server) Tokens() *auth.TokenService {
	return s.tokens
}

// Start begins the API server and blocks until an interrupt arrives, then
// shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
