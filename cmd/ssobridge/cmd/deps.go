package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/ssobridge/cache/redis"
	"github.com/pilab-dev/ssobridge/config"
	"github.com/pilab-dev/ssobridge/internal/audit"
	"github.com/pilab-dev/ssobridge/internal/auth"
	"github.com/pilab-dev/ssobridge/internal/keyring"
	"github.com/pilab-dev/ssobridge/internal/metrics"
	"github.com/pilab-dev/ssobridge/internal/server"
	"github.com/pilab-dev/ssobridge/internal/session"
	"github.com/pilab-dev/ssobridge/internal/telemetry"
	"github.com/pilab-dev/ssobridge/mongodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func connectMongo(ctx context.Context, c *closers) error {
	if err := mongodb.InitMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database); err != nil {
		return fmt.Errorf("initialize mongodb: %w", err)
	}
	c.add(func() { mongodb.CloseMongoDB(context.Background()) })

	return nil
}

// openKeyRingStore returns the store selected by keyring.backend.
func openKeyRingStore(ctx context.Context, c *closers) (keyring.Store, error) {
	kc := cfg.KeyRing

	switch kc.Backend {
	case config.KeyRingFile:
		return keyring.NewBoltStore(kc.Path, kc.LockTimeout)
	case config.KeyRingRedis:
		client, err := redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		c.add(func() { _ = client.Close() })

		return redis.NewKeyRingStore(client, kc.RedisPrefix), nil
	case config.KeyRingMongo:
		if err := connectMongo(ctx, c); err != nil {
			return nil, err
		}

		return mongodb.NewKeyRingRepository(ctx, mongodb.GetDB())
	case config.KeyRingMemory:
		appLogger.Warn(ctx, "Using an in-memory key ring; sessions will not survive a restart or be shared")
		return keyring.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown keyring.backend %q", config.ErrInvalidConfig, kc.Backend)
	}
}

func openKeyRing(ctx context.Context, c *closers) (*keyring.Ring, error) {
	store, err := openKeyRingStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("open key ring store: %w", err)
	}

	return keyring.New(cfg.KeyRing.ApplicationName, store, keyring.Options{
		Lifetime:     cfg.KeyRing.Lifetime,
		RotationLead: cfg.KeyRing.RotationLead,
	})
}

func openAccounts(ctx context.Context, c *closers) (*mongodb.AccountRepository, error) {
	if err := connectMongo(ctx, c); err != nil {
		return nil, err
	}

	return mongodb.NewAccountRepository(ctx, mongodb.GetDB(), auth.NewBcryptPasswordHasher(0))
}

// newSessionManager shares the session cookie between services and gives each
// of them a correlation cookie of its own, scoped to its callback path.
func newSessionManager(ring *keyring.Ring, service, callbackPath string) *session.Manager {
	return session.NewManager(ring, session.CookieOptions{
		Name:            cfg.Session.CookieName,
		Domain:          cfg.Session.CookieDomain,
		Secure:          cfg.Session.Secure,
		CorrelationName: cfg.Session.CookieName + "." + service + ".correlation",
		CorrelationPath: callbackPath,
	})
}

func newAuditSink(service string) audit.Sink {
	return audit.Multi{audit.NewZerologSink(os.Stdout, service), audit.MetricsSink{}}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(reg)

	return reg
}

// serve runs api on addr until ctx is cancelled.
func serve(ctx context.Context, service, addr string, api server.RouteRegistrar, ready func(context.Context) error) error {
	tp, err := telemetry.InitTracer(telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName + "-" + service,
		Exporter:    cfg.Telemetry.TraceExporter,
	})
	if err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background(), tp)

	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.NewHTTPServer(server.Options{
		Addr:        addr,
		ServiceName: cfg.Telemetry.ServiceName + "-" + service,
		Server:      cfg.Server,
		Logger:      appLogger.With(map[string]interface{}{"service": service}),
		Gatherer:    newRegistry(),
		Ready:       ready,
	}, api)

	return server.Run(ctx, srv, cfg.Server.ShutdownTimeout, appLogger)
}
