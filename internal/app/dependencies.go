// Package app wires the pricing pipeline shared by the API and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/cache"
	"github.com/noah-isme/toko-pricing/internal/checkout"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/order"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/queue"
	"github.com/noah-isme/toko-pricing/internal/resilience"
	"github.com/noah-isme/toko-pricing/internal/storage/postgres"
	"github.com/noah-isme/toko-pricing/internal/tax/taxapp"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

// Dependencies enumerates the services shared by the API and the worker.
type Dependencies struct {
	Config          *config.Config
	Logger          zerolog.Logger
	DB              *pgxpool.Pool
	Redis           *redis.Client
	RedisConn       asynq.RedisConnOpt
	TaskClient      *asynq.Client
	MetricsRegistry prometheus.Registerer
	TaxBreaker      *resilience.Breaker
	Orders          *order.Calculator
	Checkouts       *checkout.Calculator
}

// New connects to Postgres and Redis, applies migrations when configured and
// assembles the order and checkout calculators.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger, MetricsRegistry: prometheus.DefaultRegisterer}
	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, d.MetricsRegistry)
		resilience.MustRegisterMetrics(d.MetricsRegistry)
	}

	if cfg.DBMigrateOnStart {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info().Msg("database_migrated")
	}

	var err error
	if d.DB, err = initDatabase(ctx, cfg); err != nil {
		return nil, err
	}
	if d.Redis, err = initRedis(ctx, cfg, logger); err != nil {
		d.Close()
		return nil, err
	}
	if d.RedisConn, err = asynq.ParseRedisURI(cfg.RedisURL); err != nil {
		d.Close()
		return nil, fmt.Errorf("parse redis uri for tasks: %w", err)
	}
	d.TaskClient = asynq.NewClient(d.RedisConn)

	apps := NewTaxApps(cfg, d.Redis, logger)
	d.TaxBreaker = apps.Breaker
	engine := &pricing.Engine{
		TaxApps:             apps.ByID,
		DefaultTaxApp:       apps.Default,
		FallbackToFlatRates: cfg.TaxFallbackFlatRate,
		TaxTimeout:          taxPhaseTimeout(cfg),
		Logger:              componentLogger(logger, "pricing"),
	}

	taxes := postgres.NewTaxConfigStore(d.DB)
	vouchers := &voucher.Service{Store: postgres.NewVoucherStore(d.DB)}

	d.Orders = &order.Calculator{
		Store:    postgres.NewOrderStore(d.DB),
		Taxes:    taxes,
		Engine:   engine,
		Resolver: &order.Resolver{Vouchers: vouchers, Logger: componentLogger(logger, "voucher")},
		Refresh: queue.Enqueuer{
			Client:   d.TaskClient,
			DedupTTL: cfg.QueueRefreshDedupTTL,
			MaxRetry: cfg.QueueMaxRetry,
			Timeout:  taxPhaseTimeout(cfg) + 10*time.Second,
		},
		Logger: componentLogger(logger, "order"),
	}
	d.Checkouts = &checkout.Calculator{
		Store:    postgres.NewCheckoutStore(d.DB),
		Taxes:    taxes,
		Engine:   engine,
		Vouchers: vouchers,
		Locker: lock.Locker{
			R:            d.Redis,
			RetryBackoff: cfg.LockRetryBackoff,
			MaxWait:      cfg.LockMaxWait,
			Prefix:       cfg.RedisPrefix,
		},
		LockTTL:   cfg.LockTTL,
		PricesTTL: cfg.CheckoutPricesTTL,
		Logger:    componentLogger(logger, "checkout"),
	}
	return d, nil
}

// TaxApps is the tax app registry handed to the pricing engine.
type TaxApps struct {
	// Default serves channels whose tax app identifier is not registered.
	// Nil when TAX_APP_URL is unset.
	Default pricing.TaxApp
	ByID    map[string]pricing.TaxApp
	// Breaker guards the default app and is reported by readiness.
	Breaker *resilience.Breaker
}

// NewTaxApps builds one client for TAX_APP_URL and one per TAX_APPS entry.
// Every app gets its own breaker and response cache namespace.
func NewTaxApps(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) TaxApps {
	apps := TaxApps{
		ByID:    make(map[string]pricing.TaxApp, len(cfg.TaxApps)),
		Breaker: newTaxBreaker(cfg, "tax_app", logger),
	}
	if cfg.TaxAppURL != "" {
		apps.Default = newTaxAppClient(cfg, "default", cfg.TaxAppURL, cfg.TaxAppSecret, apps.Breaker,
			cache.NewJSON(rdb, cfg.RedisPrefix+":cache", cfg.TaxAppCacheTTL), componentLogger(logger, "tax_app"))
	} else {
		logger.Warn().Msg("tax_app_not_configured")
	}
	for _, ep := range cfg.TaxApps {
		target := "tax_app:" + ep.ID
		apps.ByID[ep.ID] = newTaxAppClient(cfg, ep.ID, ep.URL, ep.Secret, newTaxBreaker(cfg, target, logger),
			cache.NewJSON(rdb, cfg.RedisPrefix+":cache:"+ep.ID, cfg.TaxAppCacheTTL), componentLogger(logger, target))
	}
	if len(apps.ByID) > 0 {
		logger.Info().Int("count", len(apps.ByID)).Msg("tax_apps_registered")
	}
	return apps
}

func newTaxBreaker(cfg *config.Config, target string, logger zerolog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(cfg.CircuitTaxMinRequests, cfg.CircuitTaxFailureRate, cfg.CircuitTaxOpenFor).
		WithTarget(target).
		WithLogger(logger)
}

func newTaxAppClient(cfg *config.Config, name, url, secret string, breaker *resilience.Breaker, jsonCache *cache.JSON, logger *zerolog.Logger) *taxapp.Client {
	return &taxapp.Client{
		Name:   name,
		URL:    url,
		Secret: secret,
		HTTP: resilience.HTTPClient{
			Client:      taxapp.NewHTTPClient(cfg.TaxAppTimeout),
			Breaker:     breaker,
			BaseBackoff: cfg.TaxAppRetryBase,
			MaxAttempts: cfg.TaxAppMaxAttempts,
			Jitter:      cfg.TaxAppRetryJitter,
			Timeout:     cfg.TaxAppTimeout,
		},
		Cache:  jsonCache,
		Logger: logger,
	}
}

// Close releases every connection opened by New.
func (d *Dependencies) Close() {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// PingDB implements health.Checker.
func (d *Dependencies) PingDB(ctx context.Context, timeout time.Duration) error {
	if d.DB == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.DB.Ping(ctx)
}

// PingRedis implements health.Checker.
func (d *Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

func initDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-pricing"
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// taxPhaseTimeout bounds every attempt of the tax app call plus backoff.
func taxPhaseTimeout(cfg *config.Config) time.Duration {
	attempts := max(cfg.TaxAppMaxAttempts, 1)
	return time.Duration(attempts)*cfg.TaxAppTimeout + time.Duration(attempts)*cfg.TaxAppRetryBase*2
}

func componentLogger(logger zerolog.Logger, component string) *zerolog.Logger {
	l := logger.With().Str("component", component).Logger()
	return &l
}
