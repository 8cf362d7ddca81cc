package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/core/events"
	idempotencyPostgres "github.com/frahmantamala/paygate/internal/idempotency/postgres"
	"github.com/frahmantamala/paygate/internal/lock"
	merchantPostgres "github.com/frahmantamala/paygate/internal/merchant/postgres"
	orderPostgres "github.com/frahmantamala/paygate/internal/order/postgres"
	paymentPostgres "github.com/frahmantamala/paygate/internal/payment/postgres"
	"github.com/frahmantamala/paygate/internal/queue"
	refundPostgres "github.com/frahmantamala/paygate/internal/refund/postgres"
	"github.com/frahmantamala/paygate/internal/tracing"
	webhookPostgres "github.com/frahmantamala/paygate/internal/webhook/postgres"
	"github.com/frahmantamala/paygate/pkg/logger"
)

type Dependencies struct {
	Config *internal.Config
	Logger *slog.Logger
	SQL    *sqlx.DB
	DB     *gorm.DB
	// Redis is nil with the memory queue backend.
	Redis *redis.Client
	Queue queue.Queue
	Bus   *events.EventBus

	shutdownTracing tracing.ShutdownFunc
}

type repositories struct {
	merchants   *merchantPostgres.MerchantRepository
	orders      *orderPostgres.OrderRepository
	payments    *paymentPostgres.PaymentRepository
	stats       *paymentPostgres.StatsRepository
	refunds     *refundPostgres.RefundRepository
	webhooks    *webhookPostgres.WebhookRepository
	idempotency *idempotencyPostgres.IdempotencyRepository
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	shutdownTracing, err := tracing.Setup(cfg.Observability.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	sqlDB, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config:          cfg,
		Logger:          lg,
		SQL:             sqlDB,
		DB:              gormDB,
		Bus:             events.NewEventBus(lg),
		shutdownTracing: shutdownTracing,
	}

	opts := queue.Options{MaxAttempts: cfg.Worker.MaxJobAttempts, Logger: lg}
	if cfg.Worker.Backend == "redis" {
		rdb, err := initRedis(cfg.Redis)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		deps.Redis = rdb
		deps.Queue = queue.NewRedisQueue(rdb, cfg.Redis.KeyPrefix, opts)
	} else {
		lg.Warn("using in-memory job queue; jobs are lost on restart and not shared between processes")
		deps.Queue = queue.NewMemoryQueue(1000, opts)
	}

	return deps, nil
}

func (d *Dependencies) repositories() repositories {
	return repositories{
		merchants:   merchantPostgres.NewMerchantRepository(d.DB),
		orders:      orderPostgres.NewOrderRepository(d.DB),
		payments:    paymentPostgres.NewPaymentRepository(d.DB),
		stats:       paymentPostgres.NewStatsRepository(d.SQL),
		refunds:     refundPostgres.NewRefundRepository(d.DB),
		webhooks:    webhookPostgres.NewWebhookRepository(d.DB),
		idempotency: idempotencyPostgres.NewIdempotencyRepository(d.DB),
	}
}

// locker coordinates the retry poller across worker processes when Redis is
// available.
func (d *Dependencies) locker() lock.Locker {
	if d.Redis != nil {
		return lock.NewRedisLocker(d.Redis, d.Config.Redis.KeyPrefix)
	}
	return lock.NewLocalLocker()
}

// Close stops consumers first so in-flight jobs finish before the stores go away.
func (d *Dependencies) Close() {
	if err := d.Queue.Close(); err != nil {
		d.Logger.Error("queue close error", "error", err)
	}
	d.Bus.Wait()
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := d.SQL.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.shutdownTracing(ctx); err != nil {
		d.Logger.Error("tracing shutdown error", "error", err)
	}
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// initGorm shares the sqlx connection pool with gorm.
func initGorm(sqlDB *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}

func initRedis(cfg internal.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
