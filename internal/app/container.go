package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	adjustmentQueries "github.com/felixgeelhaar/carevisit/internal/adjustment/application/queries"
	adjustmentServices "github.com/felixgeelhaar/carevisit/internal/adjustment/application/services"
	adjustmentDomain "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	adjustmentPersistence "github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/persistence"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/schedulestore"
	approvalQueries "github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	approvalServices "github.com/felixgeelhaar/carevisit/internal/approval/application/services"
	approvalPersistence "github.com/felixgeelhaar/carevisit/internal/approval/infrastructure/persistence"
	permissionServices "github.com/felixgeelhaar/carevisit/internal/permission/application/services"
	permissionDomain "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/carevisit/internal/permission/infrastructure/profiles"
	"github.com/felixgeelhaar/carevisit/internal/scoring"
	sharedApplication "github.com/felixgeelhaar/carevisit/internal/shared/application"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/carevisit/pkg/config"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// outboxMaxLag is how far behind the relay may fall before health degrades.
const outboxMaxLag = 5 * time.Minute

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Metrics *observability.InMemoryMetrics
	Health  *observability.HealthRegistry

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Events
	EventPublisher  eventbus.Publisher
	Gateway         *eventbus.Gateway
	OutboxRepo      *outbox.SQLRepository
	OutboxProcessor *outbox.Processor

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Repositories
	ScheduleRepo *adjustmentPersistence.ScheduleRepository
	ConflictRepo *adjustmentPersistence.ConflictRepository
	ReportRepo   *adjustmentPersistence.ReportRepository
	CaseRepo     *approvalPersistence.CaseRepository

	// Schedule source
	ScheduleStore adjustmentDomain.ScheduleStore
	Committer     adjustmentDomain.AdjustmentCommitter
	LookupCache   *schedulestore.CachedStore // nil when lookups are not cached

	// Permissions
	Profiles *profiles.FileProvider
	Usage    permissionDomain.UsageCounter

	// Scoring plugins
	PluginLoader *scoring.Loader

	// Services
	Classifier   *adjustmentServices.ConflictClassifier
	Resolver     *adjustmentServices.ResolutionEngine
	Evaluator    *permissionServices.PermissionEvaluator
	Workflow     *approvalServices.WorkflowEngine
	Orchestrator *adjustmentServices.BatchOrchestrator

	// Query Handlers
	GetBatchReportHandler *adjustmentQueries.GetBatchReportHandler
	GetCaseHandler        *approvalQueries.GetCaseHandler
	ListCasesHandler      *approvalQueries.ListCasesHandler

	closers []func() error
}

// NewContainer creates and wires all dependencies.
// Redis and RabbitMQ are optional in development; production refuses to start without them
// when they are configured.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(),
	}

	if err := c.initInfrastructure(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initServices(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	cfg := c.Config

	conn, err := openDatabase(ctx, cfg, c.Logger)
	if err != nil {
		return err
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.closers = append(c.closers, conn.Close)
	c.UnitOfWork = database.NewUnitOfWork(conn)
	c.Health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy, conn.Ping))

	c.RedisClient, err = connectRedis(ctx, cfg, c.Logger)
	if err != nil {
		return err
	}
	if c.RedisClient != nil {
		client := c.RedisClient
		c.closers = append(c.closers, client.Close)
		c.Health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	c.EventPublisher, err = newPublisher(cfg, c.Logger)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, c.EventPublisher.Close)
	if rabbit, ok := c.EventPublisher.(*eventbus.RabbitMQPublisher); ok {
		c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", observability.HealthStatusDegraded, rabbit.Healthy))
	}
	notifyVia := c.EventPublisher
	if cfg.OutboxEnabled {
		c.OutboxRepo = outbox.NewSQLRepository(conn)
		c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, OutboxProcessorConfig(cfg), c.Logger)
		c.OutboxProcessor.SetMetrics(c.Metrics)
		processor := c.OutboxProcessor
		c.closers = append(c.closers, func() error {
			processor.Stop()
			return nil
		})
		c.Health.Register("outbox", observability.RelayLagChecker(func() float64 {
			return processor.GetStats().LagSeconds
		}, outboxMaxLag))
		notifyVia = outbox.NewPublisher(c.OutboxRepo)
	}
	c.Gateway = eventbus.NewGateway(notifyVia, cfg.NotifyTimeout, c.Logger)
	c.Gateway.SetMetrics(c.Metrics)

	c.ScheduleRepo = adjustmentPersistence.NewScheduleRepository(conn)
	c.ConflictRepo = adjustmentPersistence.NewConflictRepository(conn)
	c.ReportRepo = adjustmentPersistence.NewReportRepository(conn)
	c.CaseRepo = approvalPersistence.NewCaseRepository(conn)

	c.ScheduleStore, c.Committer = c.buildScheduleStore()

	c.Profiles, err = profiles.NewFileProvider(cfg.ProfilesPath, c.Logger)
	if err != nil {
		return fmt.Errorf("load permission profiles: %w", err)
	}
	c.Usage = newUsageCounter(c.RedisClient)

	c.PluginLoader = scoring.NewLoader(c.Logger)
	c.closers = append(c.closers, func() error {
		c.PluginLoader.UnloadAll()
		return nil
	})
	return nil
}

func (c *Container) initServices() error {
	cfg := c.Config
	loc := cfg.Location()

	scorer, err := c.buildScorer()
	if err != nil {
		return err
	}

	classifierConfig := adjustmentServices.DefaultClassifierConfig()
	classifierConfig.Buffer = time.Duration(cfg.BufferMinutes) * time.Minute
	classifierConfig.RadiusDays = cfg.SearchRadiusDays
	classifierConfig.BatchSize = cfg.ClassifyBatchSize
	classifierConfig.MaxConcurrentChecks = cfg.ClassifyWorkers
	c.Classifier = adjustmentServices.NewConflictClassifier(c.ScheduleStore, scorer, classifierConfig, c.Logger)

	resolverConfig := adjustmentServices.DefaultResolverConfig()
	resolverConfig.Buffer = classifierConfig.Buffer
	resolverConfig.MaxAttempts = cfg.ResolveMaxAttempts
	resolverConfig.Location = loc
	c.Resolver = adjustmentServices.NewResolutionEngine(resolverConfig, c.Logger)

	evaluatorConfig := permissionServices.DefaultEvaluatorConfig()
	evaluatorConfig.Location = loc
	c.Evaluator = permissionServices.NewPermissionEvaluator(c.Profiles, c.Usage, c.Profiles, evaluatorConfig, c.Logger)

	c.Workflow = approvalServices.NewWorkflowEngine(c.CaseRepo, c.UnitOfWork, c.Gateway, c.Logger)
	c.Workflow.SetMetrics(c.Metrics)

	c.Orchestrator = adjustmentServices.NewBatchOrchestrator(adjustmentServices.OrchestratorDeps{
		Classifier: c.Classifier,
		Resolver:   c.Resolver,
		Checker:    c.Evaluator,
		Approvals:  c.Workflow,
		Committer:  c.Committer,
		Conflicts:  c.ConflictRepo,
		Reports:    c.ReportRepo,
		UnitOfWork: c.UnitOfWork,
		Gateway:    c.Gateway,
		Metrics:    c.Metrics,
	}, c.Logger)
	c.Workflow.SetListener(c.Orchestrator)

	c.GetBatchReportHandler = adjustmentQueries.NewGetBatchReportHandler(c.ReportRepo, c.ConflictRepo)
	c.GetCaseHandler = approvalQueries.NewGetCaseHandler(c.CaseRepo)
	c.ListCasesHandler = approvalQueries.NewListCasesHandler(c.CaseRepo)
	return nil
}

// Start runs background work: the profile file watcher and, when enabled, the
// outbox relay. It returns immediately.
func (c *Container) Start(ctx context.Context) {
	if c.Config.ProfilesPath != "" && c.Config.ProfilesPollEvery > 0 {
		go c.Profiles.Watch(ctx, c.Config.ProfilesPollEvery)
	}
	if c.OutboxProcessor != nil && c.Config.OutboxRelayInProcess {
		c.OutboxProcessor.Start(ctx)
	}
}

// OutboxProcessorConfig maps configuration onto the relay settings.
func OutboxProcessorConfig(cfg *config.Config) outbox.ProcessorConfig {
	return outbox.ProcessorConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxRetries:   cfg.OutboxMaxRetries,
	}
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("error during shutdown", "error", err)
		}
	}
	c.closers = nil
}
