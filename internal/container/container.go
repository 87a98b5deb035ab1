package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/medical-claims/internal/application/dispatcher"
	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/application/service"
	"github.com/garyjia/medical-claims/internal/application/workflow"
	"github.com/garyjia/medical-claims/internal/config"
	"github.com/garyjia/medical-claims/internal/infrastructure/export"
	"github.com/garyjia/medical-claims/internal/infrastructure/metrics"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *DatabaseBundle
	repositories *RepositoryBundle

	// Infrastructure - External
	redis    *redis.Client
	resolver port.EmployeeResolver
	metrics  *metrics.Metrics
	register *export.ClaimsRegister

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.ClaimEngine
	queries    service.ClaimQueryService

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Database, migrations and repositories
// 2. External clients (Redis, employee service)
// 3. Dispatcher, metrics and claim engine
// 4. Query service, export and notifications
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external clients
	if err := c.initExternalClients(ctx); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	// Step 3: Initialize dispatcher and claim engine
	if err := c.initDispatcherAndEngine(); err != nil {
		c.closeRedis()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize claim engine: %w", err)
	}
	c.logger.Info("Dispatcher and claim engine initialized")

	// Step 4: Initialize read side and notifications
	c.queries = ProvideQueryService(c.repositories, c.resolver, c.config.Query, c.logger)
	c.register = export.NewClaimsRegister(c.logger)
	if n := ProvideDecisionNotifier(c.config.Lark, c.dispatcher, c.logger); n != nil {
		c.logger.Info("Lark decision notifications enabled", zap.String("chat_id", c.config.Lark.ChatID))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Drain in-flight notifications before the store goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if err := c.closeRedis(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}

	if err := c.closeDatabase(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db != nil {
		if err := c.db.Conn.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	// The cache is optional, so a failing Redis degrades lookups without failing the service
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			status.Components["redis"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		} else {
			status.Components["redis"] = ComponentHealth{Healthy: true}
		}
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// HealthCheck reports an error when any required component is unhealthy.
func (c *Container) HealthCheck(ctx context.Context) error {
	status := c.Health(ctx)
	if status.Overall {
		return nil
	}
	for name, comp := range status.Components {
		if !comp.Healthy && name != "redis" {
			return fmt.Errorf("%s unhealthy: %s", name, comp.Message)
		}
	}
	return fmt.Errorf("service unhealthy")
}

// initDatabase opens the store and creates the repositories.
func (c *Container) initDatabase(ctx context.Context) error {
	db, err := ProvideDatabase(ctx, c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	repos, err := ProvideRepositories(db.TxManager, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}
	c.repositories = repos
	return nil
}

// initExternalClients connects Redis and builds the employee resolver.
func (c *Container) initExternalClients(ctx context.Context) error {
	rdb, err := ProvideRedis(ctx, c.config.Redis)
	if err != nil {
		return err
	}
	c.redis = rdb
	c.resolver = ProvideEmployeeResolver(c.config.EmployeeService, rdb, c.logger)
	return nil
}

// initDispatcherAndEngine creates the dispatcher, metrics and the claim engine.
func (c *Container) initDispatcherAndEngine() error {
	c.dispatcher = ProvideDispatcher(c.logger)

	var recorder port.MetricsRecorder
	if c.config.Metrics.Enabled {
		c.metrics = metrics.New()
		recorder = c.metrics
	}

	engine, err := ProvideEngine(&EngineDeps{
		Repos:      c.repositories,
		TxManager:  c.db.TxManager,
		Dispatcher: c.dispatcher,
		Metrics:    recorder,
		ClaimID:    c.config.ClaimID,
		FiscalYear: c.config.FiscalYear,
		MaxRetries: c.config.Sequence.MaxRetries,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) closeRedis() error {
	if c.redis == nil {
		return nil
	}
	err := c.redis.Close()
	if err != nil {
		c.logger.Error("Failed to close redis", zap.Error(err))
	} else {
		c.logger.Info("Redis closed")
	}
	c.redis = nil
	return err
}

func (c *Container) closeDatabase() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Conn.Close()
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
	} else {
		c.logger.Info("Database closed")
	}
	c.db = nil
	return err
}

// Getters for accessing container components

// Engine returns the claim engine.
func (c *Container) Engine() workflow.ClaimEngine {
	return c.engine
}

// Queries returns the claim query service.
func (c *Container) Queries() service.ClaimQueryService {
	return c.queries
}

// Register returns the claims register exporter.
func (c *Container) Register() *export.ClaimsRegister {
	return c.register
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Gatherer returns the metrics source for /metrics, or nil when metrics are disabled.
func (c *Container) Gatherer() prometheus.Gatherer {
	if c.metrics == nil {
		return nil
	}
	return prometheus.DefaultGatherer
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
