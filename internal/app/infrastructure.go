package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	adjustmentServices "github.com/felixgeelhaar/carevisit/internal/adjustment/application/services"
	adjustmentDomain "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	adjustmentPersistence "github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/persistence"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/cache"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/schedulestore"
	permissionDomain "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/carevisit/internal/permission/infrastructure/usage"
	"github.com/felixgeelhaar/carevisit/internal/scoring"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/carevisit/pkg/config"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Connection, error) {
	dbCfg := database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	}
	if dbCfg.Driver == database.DriverSQLite && dbCfg.SQLitePath != ":memory:" {
		if err := database.EnsureDirectory(dbCfg.SQLitePath); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := database.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Run(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("connected to database", "driver", conn.Driver())
	return conn, nil
}

// connectRedis returns nil when Redis is not configured, or unreachable in development.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		logger.Warn("invalid Redis URL, using in-memory usage counter and cache", "error", err)
		return nil, nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Warn("Redis not available, using in-memory usage counter and cache", "error", err)
		return nil, nil
	}
	logger.Info("connected to Redis")
	return client, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (eventbus.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		return newLocalBus(logger), nil
	}
	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		logger.Warn("RabbitMQ not available, delivering events in process", "error", err)
		return newLocalBus(logger), nil
	}
	return publisher, nil
}

// newLocalBus records approval and batch events in the log when no broker is configured.
func newLocalBus(logger *slog.Logger) *eventbus.InProcessEventBus {
	bus := eventbus.NewInProcessEventBus(logger)
	bus.Subscribe("#", func(_ context.Context, env eventbus.Envelope) error {
		logger.Debug("event delivered",
			"routing_key", env.RoutingKey,
			"event_id", env.EventID,
			"aggregate_id", env.AggregateID,
		)
		return nil
	})
	return bus
}

func newUsageCounter(client *redis.Client) permissionDomain.UsageCounter {
	if client == nil {
		return usage.NewMemoryCounter()
	}
	return usage.NewRedisCounter(client)
}

// buildScheduleStore picks the source of booked visits and wraps it with the breaker, limiter and
// lookup cache. Commits pass through the cache, which drops its entries on each one.
func (c *Container) buildScheduleStore() (adjustmentDomain.ScheduleStore, adjustmentDomain.AdjustmentCommitter) {
	cfg := c.Config

	var (
		source    adjustmentDomain.ScheduleStore
		committer adjustmentDomain.AdjustmentCommitter
	)
	if cfg.UsesCalDAV() {
		dav := schedulestore.NewCalDAVStore(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, c.Logger)
		if cfg.CalDAVCalendar != "" {
			dav.WithCalendarPath(cfg.CalDAVCalendar)
		}
		if ts := caldavTokenSource(cfg); ts != nil {
			dav.WithTokenSource(ts)
		}
		source, committer = dav, dav
		c.Logger.Info("schedule source", "kind", "caldav", "url", cfg.CalDAVURL)
	} else {
		source, committer = c.ScheduleRepo, c.ScheduleRepo
		c.Logger.Info("schedule source", "kind", "database")
	}

	resilience := schedulestore.DefaultResilienceConfig()
	resilience.RatePerSecond = cfg.LookupRatePerSec
	resilience.Burst = cfg.LookupBurst
	resilience.FailureThreshold = cfg.LookupMaxFailures
	resilience.OpenTimeout = cfg.LookupOpenDuration
	resilience.CallTimeout = cfg.LookupTimeout
	resilient := schedulestore.NewResilientStore(source, resilience, c.Metrics, c.Logger)
	c.Health.Register("schedule_store", observability.BreakerHealthChecker(resilient.State))

	if cfg.LookupCacheTTL <= 0 {
		return resilient, committer
	}
	var store cache.Store = cache.NewMemoryStore()
	if c.RedisClient != nil {
		store = cache.NewRedisStore(c.RedisClient)
	}
	c.LookupCache = schedulestore.NewCachedStore(resilient, store, cfg.LookupCacheTTL, c.Metrics, c.Logger).WithCommitter(committer)
	return c.LookupCache, c.LookupCache
}

// buildScorer loads the configured scoring plugins. A plugin that fails to load is fatal in
// production and replaced by the built-in factor otherwise.
func (c *Container) buildScorer() (*adjustmentServices.SeverityScorer, error) {
	cfg := c.Config
	var opts []adjustmentServices.ScorerOption

	load := func(path, checksum string, fallback adjustmentServices.FactorFunc) (adjustmentServices.FactorFunc, error) {
		if path == "" {
			return nil, nil
		}
		factor, err := c.PluginLoader.Load(scoring.LoadOptions{Path: path, Checksum: checksum})
		if err != nil {
			if cfg.IsProduction() {
				return nil, err
			}
			c.Logger.Warn("scoring plugin unavailable, using built-in factor", "binary", path, "error", err)
			return nil, nil
		}
		return scoring.AsFactorFunc(factor, fallback, c.Logger), nil
	}

	service, err := load(cfg.CriticalityPlugin, cfg.CriticalityChecksum,
		adjustmentServices.ServiceTableFactor(adjustmentServices.DefaultServiceCriticality, 0.5))
	if err != nil {
		return nil, err
	}
	opts = append(opts, adjustmentServices.WithServiceCriticality(service))

	resource, err := load(cfg.ResourcePlugin, cfg.ResourceChecksum, adjustmentServices.SharedResourceFactor)
	if err != nil {
		return nil, err
	}
	opts = append(opts, adjustmentServices.WithResourceIndicator(resource))

	return adjustmentServices.NewSeverityScorer(adjustmentServices.DefaultSeverityWeights(), opts...), nil
}

// caldavTokenSource prefers the client-credentials flow over a static bearer token.
// It returns nil when CalDAV uses basic auth.
func caldavTokenSource(cfg *config.Config) oauth2.TokenSource {
	switch {
	case cfg.CalDAVTokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.CalDAVClientID,
			ClientSecret: cfg.CalDAVClientSecret,
			TokenURL:     cfg.CalDAVTokenURL,
			Scopes:       cfg.CalDAVScopes,
		}
		return cc.TokenSource(context.Background())
	case cfg.CalDAVBearerToken != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.CalDAVBearerToken, TokenType: "Bearer"})
	default:
		return nil
	}
}

// ScheduleBook stores imported bookings in the database and drops cached lookups after each one.
type ScheduleBook struct {
	*adjustmentPersistence.ScheduleRepository
	cache *schedulestore.CachedStore
}

// Upsert stores s, then invalidates the lookup cache when there is one.
func (b *ScheduleBook) Upsert(ctx context.Context, s adjustmentDomain.ExistingSchedule, now time.Time) error {
	if err := b.ScheduleRepository.Upsert(ctx, s, now); err != nil {
		return err
	}
	if b.cache != nil {
		b.cache.Invalidate(ctx)
	}
	return nil
}

// ScheduleBook returns the booking store used by imports.
func (c *Container) ScheduleBook() *ScheduleBook {
	return &ScheduleBook{ScheduleRepository: c.ScheduleRepo, cache: c.LookupCache}
}
