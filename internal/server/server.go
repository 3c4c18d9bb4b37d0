// Package server exposes the stream ledger over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/payless2025/payless/internal/cache"
	"github.com/payless2025/payless/internal/config"
	"github.com/payless2025/payless/internal/observability/logger"
	"github.com/payless2025/payless/internal/observability/metrics"
	streamdomain "github.com/payless2025/payless/internal/stream/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// idempotencyTTL bounds how long a replayed create returns the original
// stream instead of making a new one.
const idempotencyTTL = 24 * time.Hour

// Server hosts the HTTP surface of the stream ledger.
type Server struct {
	cfg     config.Config
	log     *zap.Logger
	streams streamdomain.Service

	createLimiter *rateLimiter
	idempotency   cache.Cache[string, string]
}

type ServerParam struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Streams streamdomain.Service
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:     p.Config,
		log:     p.Log.Named("server"),
		streams: p.Streams,

		createLimiter: newRateLimiter(p.Config.RateLimit.CreateLimit, p.Config.RateLimit.CreateWindow),
		idempotency:   cache.NewTTLCache[string, string](),
	}
}

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(cfg config.Config, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	engine.Use(metrics.GinMiddleware(httpMetrics))
	return engine
}

// RegisterAPIRoutes mounts every ledger endpoint.
func (s *Server) RegisterAPIRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.POST("/streams", s.CreateStream)
	api.GET("/streams", s.ListStreams)
	api.GET("/streams/active", s.ListActiveStreams)
	api.GET("/streams/:id", s.GetStream)
	api.PATCH("/streams/:id", s.UpdateStream)
	api.DELETE("/streams/:id", s.DeleteStream)
}

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHTTP starts the HTTP listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
