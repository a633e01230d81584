package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied to every environment variable the service reads.
const EnvPrefix = "creatorpay"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Stripe    StripeConfig
	Payout    PayoutConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	GCP       GCPConfig
	GCS       GCSConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
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
	Env          string `envconfig:"CREATORPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"CREATORPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CREATORPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREATORPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CREATORPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CREATORPAY_DB_DSN"`
	Driver string `envconfig:"CREATORPAY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CREATORPAY_DB_HOST"`
	Port     int    `envconfig:"CREATORPAY_DB_PORT" default:"5432"`
	User     string `envconfig:"CREATORPAY_DB_USER"`
	Password string `envconfig:"CREATORPAY_DB_PASSWORD"`
	Name     string `envconfig:"CREATORPAY_DB_NAME"`
	SSLMode  string `envconfig:"CREATORPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREATORPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREATORPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREATORPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREATORPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"CREATORPAY_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CREATORPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CREATORPAY_REDIS_ADDR"`
	Password     string        `envconfig:"CREATORPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREATORPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREATORPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREATORPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREATORPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREATORPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREATORPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens issued by the platform auth service. This
// service never mints tokens of its own.
type JWTConfig struct {
	Secret string `envconfig:"CREATORPAY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CREATORPAY_JWT_ISSUER" required:"true"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CREATORPAY_STRIPE_API_KEY"`
	Secret string `envconfig:"CREATORPAY_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"CREATORPAY_STRIPE_ENV" default:"test"`

	TransferTimeout time.Duration `envconfig:"CREATORPAY_STRIPE_TRANSFER_TIMEOUT" default:"30s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PayoutConfig struct {
	// MinimumMinor is the global per-currency payout floor in minor units.
	// Creators may carry a per-row override.
	MinimumMinor int64 `envconfig:"CREATORPAY_PAYOUT_MINIMUM_MINOR" default:"5000"`
	// Interval is how often the payout worker wakes up; each cycle settles
	// the most recent closed period.
	Interval time.Duration `envconfig:"CREATORPAY_PAYOUT_INTERVAL" default:"24h"`
	// PeriodDays is the length of a settlement period.
	PeriodDays int `envconfig:"CREATORPAY_PAYOUT_PERIOD_DAYS" default:"30"`
	// ReportPrefix is the object key prefix for payout report CSVs.
	ReportPrefix string `envconfig:"CREATORPAY_PAYOUT_REPORT_PREFIX" default:"payout-reports"`
}

type WebhookConfig struct {
	// IdempotencyTTL bounds how long the redis fast-path replay guard
	// remembers an event id. The webhook_events table is the durable guard.
	IdempotencyTTL time.Duration `envconfig:"CREATORPAY_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	// RetentionDays controls pruning of processed webhook dedupe rows.
	RetentionDays int `envconfig:"CREATORPAY_WEBHOOK_RETENTION_DAYS" default:"90"`
}

type RateLimitConfig struct {
	// Dashboard settings throttle the unauthenticated-adjacent read
	// endpoints that storefronts poll.
	DashboardWindow  time.Duration `envconfig:"CREATORPAY_RATE_LIMIT_DASHBOARD_WINDOW" default:"1m"`
	DashboardIPLimit int           `envconfig:"CREATORPAY_RATE_LIMIT_DASHBOARD_IP_LIMIT" default:"120"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CREATORPAY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CREATORPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CREATORPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"CREATORPAY_GCS_BUCKET_NAME"`
	DownloadURLExpiry time.Duration `envconfig:"CREATORPAY_GCS_DOWNLOAD_URL_EXPIRY" default:"168h"`
}

type PubSubConfig struct {
	PayoutTopic        string `envconfig:"CREATORPAY_PUBSUB_PAYOUT_TOPIC" default:"cp-payout-events"`
	PayoutSubscription string `envconfig:"CREATORPAY_PUBSUB_PAYOUT_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CREATORPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CREATORPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CREATORPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		"CREATORPAY_DB_HOST": db.Host,
		"CREATORPAY_DB_USER": db.User,
		"CREATORPAY_DB_NAME": db.Name,
	}
	for _, env := range []string{"CREATORPAY_DB_HOST", "CREATORPAY_DB_USER", "CREATORPAY_DB_NAME"} {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either CREATORPAY_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
