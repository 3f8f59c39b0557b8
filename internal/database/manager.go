package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database connection manager
type Manager struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *logrus.Logger
}

// Database configuration
type Config struct {
	DatabaseURL  string
	RedisURL     string
	RedisEnabled bool
	LogLevel     string
}

// NewManager creates a new database manager with connection pooling.
// Redis is optional; a nil Redis client means callers fall back to memory.
func NewManager(config *Config, log *logrus.Logger) (*Manager, error) {
	db, err := gorm.Open(postgres.Open(config.DatabaseURL), &gorm.Config{
		Logger:                 newGormLogger(config.LogLevel, log),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m := &Manager{DB: db, logger: log}

	if !config.RedisEnabled || config.RedisURL == "" {
		log.Info("Redis disabled, using in-memory caches")
		return m, nil
	}

	redisClient, err := connectRedis(config.RedisURL)
	if err != nil {
		// The pipeline works without Redis; only the shared cache is lost.
		log.WithError(err).Warn("Redis unavailable, using in-memory caches")
		return m, nil
	}
	m.Redis = redisClient

	log.Info("Database and Redis connections established successfully")
	return m, nil
}

func connectRedis(url string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.PoolSize = 20
	redisOpts.MinIdleConns = 5
	redisOpts.MaxConnAge = time.Hour
	redisOpts.IdleTimeout = 30 * time.Minute
	redisOpts.IdleCheckFrequency = 30 * time.Second

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func newGormLogger(level string, log *logrus.Logger) gormlogger.Interface {
	if level != "debug" {
		return gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return gormlogger.New(log, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Info,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Migrate runs database migrations
func (m *Manager) Migrate() error {
	m.logger.Info("Running database migrations...")
	return AutoMigrate(m.DB)
}

// AutoMigrate creates or updates every table the pipeline writes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.QueryTemplate{},
		&models.GeneratedQuery{},
		&models.PerformanceLog{},
	)
}

// Close closes all database connections
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}

// Health check methods
func (m *Manager) PingDatabase(ctx context.Context) error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (m *Manager) PingRedis(ctx context.Context) error {
	if m.Redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return m.Redis.Ping(ctx).Err()
}
