package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ssogin "github.com/pilab-dev/ssobridge/api/gin"
	"github.com/pilab-dev/ssobridge/config"
	"github.com/pilab-dev/ssobridge/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouteRegistrar is implemented by the IdP and relying party APIs.
type RouteRegistrar interface {
	RegisterRoutes(e *gin.Engine)
}

// Options configure NewHTTPServer.
type Options struct {
	Addr        string
	ServiceName string
	Server      config.ServerConfig
	Logger      log.Logger
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
	// Ready is probed by /healthz. Nil always reports healthy.
	Ready func(ctx context.Context) error
}

// NewRouter builds the gin engine shared by both services: recovery, access
// logging, tracing, security headers, /healthz and /metrics, then api's own
// routes.
func NewRouter(opts Options, api RouteRegistrar) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(accessLog(opts.Logger))
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(ssogin.SecurityHeadersMiddleware(opts.Server.HSTS))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/healthz", healthz(opts.Ready))

	api.RegisterRoutes(router)

	return router
}

// NewHTTPServer creates and configures a new gin HTTP server.
func NewHTTPServer(opts Options, api RouteRegistrar) *http.Server {
	return &http.Server{
		Addr:         opts.Addr,
		Handler:      NewRouter(opts, api),
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout,
		IdleTimeout:  opts.Server.IdleTimeout,
	}
}

// Run serves srv until ctx is cancelled, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger log.Logger) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Info(ctx, "HTTP server listening", log.Fields{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-errCh
}

func accessLog(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}

		if len(c.Errors) > 0 {
			logger.Error(c.Request.Context(), c.Errors.String(), c.Errors.Last().Err, fields)
			return
		}
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			logger.Debug(c.Request.Context(), "HTTP Request", fields)
			return
		}

		logger.Info(c.Request.Context(), "HTTP Request", fields)
	}
}

func healthz(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			if err := ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
