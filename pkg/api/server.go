// Package api exposes the HTTP surface: the Telegram webhook endpoint and a
// health check.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bridgecall/bridgecall/pkg/database"
	"github.com/bridgecall/bridgecall/pkg/scheduler"
	"github.com/bridgecall/bridgecall/pkg/telegram"
)

// Server represents the API server
type Server struct {
	db            *database.Client
	driver        *scheduler.Driver
	botClient     *telegram.Client
	webhookSecret string

	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(db *database.Client, driver *scheduler.Driver, botClient *telegram.Client, webhookSecret string) *Server {
	return &Server{
		db:            db,
		driver:        driver,
		botClient:     botClient,
		webhookSecret: webhookSecret,
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(securityHeaders())

	router.GET("/health", s.Health)
	router.POST("/tg/:token", s.Webhook)

	return router
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(host string, port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
