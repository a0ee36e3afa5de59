package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/wavemark/playback-triggers/internal/config"
	"github.com/wavemark/playback-triggers/internal/server"
	"github.com/wavemark/playback-triggers/pkg/dispatch"
	"github.com/wavemark/playback-triggers/pkg/engine"
	"github.com/wavemark/playback-triggers/pkg/playback"
	"github.com/wavemark/playback-triggers/pkg/resolve"
	"github.com/wavemark/playback-triggers/pkg/scenario"
	"github.com/wavemark/playback-triggers/pkg/store"
	"github.com/wavemark/playback-triggers/pkg/throttle"
)

// App holds all application dependencies and manages the application
// lifecycle. Components are initialized in dependency order: store backend,
// scenario registry, limiter and dispatcher, engine, then servers and
// telemetry.
type App struct {
	cfg               *config.Config
	metricsServer     *server.MetricsServer
	redisClient       *redis.Client
	shutdownTelemetry func(context.Context) error

	surface *playback.Surface
	engine  *engine.Engine
}

// New creates and initializes a new application instance.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg, surface: playback.NewSurface()}

	actionStore, err := app.initStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	loader := scenario.NewLoader()
	loader.StrictVersioning = cfg.StrictVersioning
	scenarios, err := loader.Load(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios from %s: %w", cfg.ScenarioPath, err)
	}
	logrus.Infof("loaded %d scenarios from %s", len(scenarios), cfg.ScenarioPath)

	limiter := throttle.NewLimiter(actionStore)

	dispatcher := dispatch.New(dispatch.Dependencies{
		Store:     actionStore,
		Limiter:   limiter,
		Secondary: newHostSecondary,
		Popup:     &hostPopup{},
		Navigator: &hostNavigator{},
		Downloads: &hostDownloads{},
		Overlay:   &hostOverlay{},
	})

	app.engine = engine.New(engine.Config{
		Scenarios:  scenarios,
		Surface:    app.surface,
		Store:      actionStore,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Viewer:     resolve.Viewer{},
	})

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	if cfg.OtelEnabled {
		shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, cfg.ZipkinEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		app.shutdownTelemetry = shutdownTelemetry
	}

	logrus.Info("application initialized successfully")

	return app, nil
}

// Engine exposes the trigger evaluator to the host media layer, which
// registers players on the surface and delivers playback events.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Surface exposes the live player registry to the host media layer.
func (a *App) Surface() *playback.Surface {
	return a.surface
}

// initStore selects the store backend. Redis is the durable default; the
// memory backend serves tests and hosts without a Redis deployment.
func (a *App) initStore(ctx context.Context) (store.Store, error) {
	if a.cfg.StoreBackend == "memory" {
		logrus.Info("using in-memory action store")
		return store.NewMemoryStore(), nil
	}

	if err := a.initRedis(ctx); err != nil {
		return nil, err
	}
	return store.NewRedisStore(a.redisClient, ""), nil
}

// initRedis initializes the Redis client, retrying the initial ping with
// exponential backoff.
func (a *App) initRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         a.cfg.RedisHost + ":" + a.cfg.RedisPort,
		Password:     a.cfg.RedisPassword,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(a.cfg.RedisRetryDelayMs) * time.Millisecond
	retries := backoff.WithMaxRetries(b, uint64(a.cfg.RedisMaxRetries))

	err := backoff.Retry(
		func() error {
			_, err := client.Ping(ctx).Result()
			if err != nil {
				logrus.Warnf("Redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		retries,
	)

	if err != nil {
		return err
	}

	a.redisClient = client
	logrus.Info("Redis client initialized")
	return nil
}
