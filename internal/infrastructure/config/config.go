package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	Trainer   TrainerConfig   `mapstructure:"trainer"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Selection SelectionConfig `mapstructure:"selection"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Events    EventsConfig    `mapstructure:"events"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// JWTSecret enables HS256 bearer authentication of the /v1 API when set.
	JWTSecret       string        `mapstructure:"jwt_secret"`
}

// DatabaseConfig holds database configuration. DSN wins over the discrete
// postgres fields when set.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds the redis progress store connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// MongoConfig holds the mongo progress store connection.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// StoreConfig selects the progress store backend: "sql", "redis" or "mongo".
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrainerConfig tunes chord recognition and practice sessions.
type TrainerConfig struct {
	BaseMaxDurationMs int64         `mapstructure:"base_max_duration_ms"`
	TimingTolerance   float64       `mapstructure:"timing_tolerance"`
	ShortInputMaxLen  int           `mapstructure:"short_input_max_len"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	TimeLimit         time.Duration `mapstructure:"time_limit"`
	FeedbackDelay     time.Duration `mapstructure:"feedback_delay"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Lives             int           `mapstructure:"lives"`
	BatchSize         int           `mapstructure:"batch_size"`
}

// SchedulerConfig overrides the scheduler's interval caps and failure grades.
type SchedulerConfig struct {
	MaxIntervalMasteredDays    float64 `mapstructure:"max_interval_mastered_days"`
	MaxIntervalNotMasteredDays float64 `mapstructure:"max_interval_not_mastered_days"`
	FirstAttemptQuality        int     `mapstructure:"first_attempt_quality"`
	RevealedQuality            int     `mapstructure:"revealed_quality"`
	RetryQuality               int     `mapstructure:"retry_quality"`
}

// SelectionConfig holds the practice weighting coefficients.
type SelectionConfig struct {
	MinBaseWeight       float64 `mapstructure:"min_base_weight"`
	FailedMultiplier    float64 `mapstructure:"failed_multiplier"`
	OverdueBoostPerDay  float64 `mapstructure:"overdue_boost_per_day"`
	LowAttemptThreshold int     `mapstructure:"low_attempt_threshold"`
	LowAttemptBonus     float64 `mapstructure:"low_attempt_bonus"`
}

// ReminderConfig drives the periodic due-review reminder job of the server.
type ReminderConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// CatalogConfig points at an optional challenge catalog file.
type CatalogConfig struct {
	File string `mapstructure:"file"`
}

// BackupConfig tunes export and import.
type BackupConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// EventsConfig configures publishing of attempt events to RabbitMQ. An empty
// URL disables publishing.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.jwt_secret", "")

	viper.SetDefault("database.driver", "sqlite3")
	viper.SetDefault("database.dsn", "file:chordnet.db?_busy_timeout=5000")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "chordnet")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "chordnet")

	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "chordnet")
	viper.SetDefault("mongo.collection", "progress")

	viper.SetDefault("store.backend", "sql")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	viper.SetDefault("trainer.base_max_duration_ms", 150)
	viper.SetDefault("trainer.timing_tolerance", 2.0)
	viper.SetDefault("trainer.short_input_max_len", 2)
	viper.SetDefault("trainer.settle_delay", 150*time.Millisecond)
	viper.SetDefault("trainer.time_limit", 10*time.Second)
	viper.SetDefault("trainer.feedback_delay", 600*time.Millisecond)
	viper.SetDefault("trainer.max_attempts", 3)
	viper.SetDefault("trainer.lives", 3)
	viper.SetDefault("trainer.batch_size", 20)

	viper.SetDefault("scheduler.max_interval_mastered_days", 180)
	viper.SetDefault("scheduler.max_interval_not_mastered_days", 14)
	viper.SetDefault("scheduler.first_attempt_quality", 0)
	viper.SetDefault("scheduler.revealed_quality", 1)
	viper.SetDefault("scheduler.retry_quality", 2)

	viper.SetDefault("selection.min_base_weight", 0.1)
	viper.SetDefault("selection.failed_multiplier", 4)
	viper.SetDefault("selection.overdue_boost_per_day", 1)
	viper.SetDefault("selection.low_attempt_threshold", 3)
	viper.SetDefault("selection.low_attempt_bonus", 0.5)

	viper.SetDefault("reminder.enabled", true)
	viper.SetDefault("reminder.interval", time.Hour)

	viper.SetDefault("backup.batch_size", 500)

	viper.SetDefault("events.amqp_url", "")
	viper.SetDefault("events.exchange", "chordnet.events")
}

// DatabaseDriver returns the database/sql driver name to open.
func (c *Config) DatabaseDriver() (string, error) {
	driver := strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch driver {
	case "", "sqlite3":
		return "sqlite3", nil
	case "sqlite", "postgres", "pgx":
		return driver, nil
	case "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
}

// DatabaseURL returns the connection string for the configured driver.
func (c *Config) DatabaseURL() (string, error) {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn, nil
	}
	driver, err := c.DatabaseDriver()
	if err != nil {
		return "", err
	}
	switch driver {
	case "postgres", "pgx":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.Database.User,
			c.Database.Password,
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
			c.Database.SSLMode,
		), nil
	default:
		return "", fmt.Errorf("database.dsn is required for driver %q", driver)
	}
}
