// Package container provides dependency wiring and lifecycle management
// for the medical claims service.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/medical-claims/internal/application/dispatcher"
	"github.com/garyjia/medical-claims/internal/application/port"
	"github.com/garyjia/medical-claims/internal/application/sequence"
	"github.com/garyjia/medical-claims/internal/application/service"
	"github.com/garyjia/medical-claims/internal/application/workflow"
	"github.com/garyjia/medical-claims/internal/config"
	"github.com/garyjia/medical-claims/internal/infrastructure/external/employee"
	"github.com/garyjia/medical-claims/internal/infrastructure/external/lark"
	"github.com/garyjia/medical-claims/internal/infrastructure/persistence/repository"
	"github.com/garyjia/medical-claims/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/medical-claims/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn      *database.DB
	TxManager *sqldb.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Claims    port.ClaimRepository
	Events    port.ClaimEventRepository
	Sequences port.SequenceRepository
}

// EngineDeps holds what the claim engine is built from.
type EngineDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    port.MetricsRecorder
	ClaimID    config.ClaimIDConfig
	FiscalYear config.FiscalYearConfig
	MaxRetries int
	Logger     *zap.Logger
}

// ProvideDatabase opens the store, applies pending migrations and wraps it in a transaction manager.
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).Run(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:      conn,
		TxManager: sqldb.NewDB(conn.DB, conn.Dialect, logger),
	}, nil
}

// ProvideRepositories creates all repositories on the transaction manager.
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Claims:    repository.NewClaimRepository(db, logger),
		Events:    repository.NewClaimEventRepository(db, logger),
		Sequences: repository.NewSequenceRepository(db, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(logger),
		dispatcher.WithHandlerTimeout(30*time.Second),
	)
}

// ProvideEngine builds the sequence allocators, the rule table and the claim engine.
func ProvideEngine(deps *EngineDeps) (workflow.ClaimEngine, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil {
		return nil, fmt.Errorf("engine dependencies are incomplete")
	}

	generator := sequence.NewGenerator(deps.Repos.Sequences, deps.TxManager, deps.Logger,
		sequence.WithMaxRetries(deps.MaxRetries),
		sequence.WithMetrics(deps.Metrics),
	)

	ids := sequence.NewClaimIDGenerator(generator, sequence.ClaimIDConfig{
		Prefix:     deps.ClaimID.Prefix,
		Separator:  deps.ClaimID.Separator,
		Pad:        deps.ClaimID.Pad,
		UseRange:   deps.ClaimID.UseRange,
		StartMonth: deps.FiscalYear.StartMonth,
		StartDay:   deps.FiscalYear.StartDay,
	}, nil)

	table, err := workflow.NewDefaultTable(generator, deps.Dispatcher)
	if err != nil {
		return nil, fmt.Errorf("failed to build transition table: %w", err)
	}

	return workflow.NewEngine(deps.Repos.Claims, deps.Repos.Events, deps.TxManager, ids, table,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithMetrics(deps.Metrics),
		workflow.WithLogger(deps.Logger),
		workflow.WithMaxRetries(deps.MaxRetries),
	), nil
}

// ProvideRedis connects to the lookup cache. An empty URL returns nil.
func ProvideRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// ProvideEmployeeResolver builds the employee lookup client, cached in Redis when available.
// An empty base URL returns nil and searches by CNIC or personnel number match nothing.
func ProvideEmployeeResolver(cfg config.EmployeeServiceConfig, rdb *redis.Client, logger *zap.Logger) port.EmployeeResolver {
	if cfg.BaseURL == "" {
		logger.Warn("Employee service not configured, employee lookups disabled")
		return nil
	}

	client := employee.NewClient(cfg.BaseURL, cfg.Timeout, logger)
	var cache employee.Cache
	if rdb != nil {
		cache = employee.NewRedisCache(rdb)
	}
	return employee.NewCachedResolver(client, cache, cfg.CacheTTL, logger)
}

// ProvideQueryService creates the read side.
func ProvideQueryService(repos *RepositoryBundle, resolver port.EmployeeResolver, cfg config.QueryConfig, logger *zap.Logger) service.ClaimQueryService {
	return service.NewClaimQueryService(repos.Claims, repos.Events, resolver, logger,
		service.WithPageSizes(cfg.DefaultPageSize, cfg.MaxPageSize),
		service.WithFIFOLimit(cfg.MaxFIFO),
	)
}

// ProvideDecisionNotifier subscribes the Lark decision notifier when enabled.
func ProvideDecisionNotifier(cfg config.LarkConfig, d dispatcher.Dispatcher, logger *zap.Logger) *lark.DecisionNotifier {
	if !cfg.Enabled {
		return nil
	}

	api := lark.NewMessageAPI(lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)
	notifier := lark.NewDecisionNotifier(api, cfg.ChatID, logger)
	notifier.Register(d)
	return notifier
}
