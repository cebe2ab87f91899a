package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Rental       RentalConfig
	Sweeper      SweeperConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Square       SquareConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WECINEMA_APP_ENV" required:"true"`
	Port         string `envconfig:"WECINEMA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WECINEMA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WECINEMA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WECINEMA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WECINEMA_DB_DSN"`
	Driver string `envconfig:"WECINEMA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WECINEMA_DB_HOST"`
	LegacyPort     int    `envconfig:"WECINEMA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WECINEMA_DB_USER"`
	LegacyPassword string `envconfig:"WECINEMA_DB_PASSWORD"`
	LegacyName     string `envconfig:"WECINEMA_DB_NAME"`
	LegacySSLMode  string `envconfig:"WECINEMA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WECINEMA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WECINEMA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WECINEMA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WECINEMA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.LegacyHost == "" || d.LegacyUser == "" || d.LegacyName == "" {
		return fmt.Errorf("database DSN or host/user/name are required")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.LegacyUser, d.LegacyPassword),
		Host:   fmt.Sprintf("%s:%d", d.LegacyHost, d.LegacyPort),
		Path:   d.LegacyName,
	}
	q := u.Query()
	q.Set("sslmode", d.LegacySSLMode)
	u.RawQuery = q.Encode()
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"WECINEMA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WECINEMA_REDIS_ADDR"`
	Password     string        `envconfig:"WECINEMA_REDIS_PASSWORD"`
	DB           int           `envconfig:"WECINEMA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WECINEMA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WECINEMA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WECINEMA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WECINEMA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WECINEMA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"WECINEMA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WECINEMA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"WECINEMA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WECINEMA_AUTO_MIGRATE" default:"false"`
}

// RentalConfig holds the viewing-window and resume policy knobs.
type RentalConfig struct {
	SessionWindow   time.Duration `envconfig:"WECINEMA_RENTAL_SESSION_WINDOW" default:"48h"`
	ResumeMinSecs   int           `envconfig:"WECINEMA_RENTAL_RESUME_MIN_SECS" default:"30"`
	ResumeStaleDays int           `envconfig:"WECINEMA_RENTAL_RESUME_STALE_DAYS" default:"30"`
}

type SweeperConfig struct {
	Interval          time.Duration `envconfig:"WECINEMA_SWEEPER_INTERVAL" default:"1h"`
	DepositTTLDays    int           `envconfig:"WECINEMA_SWEEPER_DEPOSIT_TTL_DAYS" default:"60"`
	LockTTL           time.Duration `envconfig:"WECINEMA_SWEEPER_LOCK_TTL" default:"2h"`
	SessionBatchLimit int           `envconfig:"WECINEMA_SWEEPER_SESSION_BATCH_LIMIT" default:"500"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"WECINEMA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"WECINEMA_PUBSUB_EVENTS_TOPIC" default:"wc-domain-events"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"WECINEMA_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"WECINEMA_SQUARE_WEBHOOK_SECRET"`
	Env           string `envconfig:"WECINEMA_SQUARE_ENV" default:"sandbox"`
}

func (s SquareConfig) Environment() string {
	return strings.ToLower(strings.TrimSpace(s.Env))
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WECINEMA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WECINEMA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WECINEMA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
