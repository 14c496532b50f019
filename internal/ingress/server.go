// Package ingress is the REST/websocket surface in front of the matching
// core (spec.md §6): placeOrder/cancelOrder/getOrderBook over HTTP, and
// the live-update feed over websocket, fronted by gin the way the
// teacher's API gateway is.
package ingress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/config"
)

// ServerParams are the fx-injected dependencies for Server.
type ServerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Config    *config.Config
}

// Server owns the gin engine and its HTTP listener.
type Server struct {
	engine *gin.Engine
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the gin engine with the teacher's recovery/request-log
// middleware shape and registers the fx lifecycle hooks that start and
// gracefully stop it.
func NewServer(p ServerParams) *Server {
	if p.Config.Monitoring.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(p.Logger))

	s := &Server{
		engine: engine,
		logger: p.Logger,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", p.Config.Server.Host, p.Config.Server.Port),
			Handler: engine,
		},
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				p.Logger.Info("ingress: starting HTTP server", zap.String("addr", s.server.Addr))
				if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					p.Logger.Error("ingress: server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.server.Shutdown(ctx)
		},
	})

	return s
}

// Engine returns the gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("ingress: request",
			zap.String("path", path),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
