// Package api provides the HTTP front end over the gateway: an SSE chat
// completion endpoint, a websocket stream, and small introspection routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bedrock-gateway/internal/config"
	"bedrock-gateway/internal/credentials"
	"bedrock-gateway/internal/gateway"
	"bedrock-gateway/internal/logging"
	log "bedrock-gateway/internal/logging"
	"bedrock-gateway/internal/usage"
)

// Server wires the gin engine, the gateway, and the usage persister.
type Server struct {
	engine    *gin.Engine
	server    *http.Server
	cfg       *config.Config
	gw        *gateway.Gateway
	creds     *credentials.Store
	persister *usage.Persister
}

// New constructs the HTTP server. persister may be nil when usage
// statistics are disabled.
func New(cfg *config.Config, gw *gateway.Gateway, creds *credentials.Store, persister *usage.Persister) *Server {
	engine := gin.New()
	engine.Use(logging.GinRecovery(), logging.GinLogger())

	s := &Server{
		engine:    engine,
		cfg:       cfg,
		gw:        gw,
		creds:     creds,
		persister: persister,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Infof("api: listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
