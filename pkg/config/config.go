package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the platform reads.
	EnvPrefix = "EVENTRENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Payments      PaymentsConfig
	Holds         HoldsConfig
	Ocr           OcrConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Notifications NotificationsConfig
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
	Env          string `envconfig:"EVENTRENT_APP_ENV" required:"true"`
	Port         string `envconfig:"EVENTRENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVENTRENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVENTRENT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTRENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTRENT_DB_DSN"`
	Driver string `envconfig:"EVENTRENT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"EVENTRENT_DB_HOST"`
	Port     int    `envconfig:"EVENTRENT_DB_PORT" default:"5432"`
	User     string `envconfig:"EVENTRENT_DB_USER"`
	Password string `envconfig:"EVENTRENT_DB_PASSWORD"`
	Name     string `envconfig:"EVENTRENT_DB_NAME"`
	SSLMode  string `envconfig:"EVENTRENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTRENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTRENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTRENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTRENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either EVENTRENT_DB_DSN or host/user/name settings are required")
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	query := dsn.Query()
	query.Set("sslmode", d.SSLMode)
	dsn.RawQuery = query.Encode()
	d.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTRENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTRENT_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTRENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTRENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTRENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTRENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTRENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTRENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTRENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EVENTRENT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVENTRENT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVENTRENT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVENTRENT_FEATURE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVENTRENT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"EVENTRENT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"EVENTRENT_PUBSUB_DOMAIN_TOPIC" default:"eventrent-domain-events"`
	DomainSubscription string `envconfig:"EVENTRENT_PUBSUB_DOMAIN_SUBSCRIPTION" default:"eventrent-domain-events-worker"`
}

// PaymentsConfig controls QR issuance and reconciliation policy.
type PaymentsConfig struct {
	MerchantName       string `envconfig:"EVENTRENT_PAYMENTS_MERCHANT_NAME" default:"EventRent PH"`
	MerchantCity       string `envconfig:"EVENTRENT_PAYMENTS_MERCHANT_CITY" default:"Quezon City"`
	MerchantAccount    string `envconfig:"EVENTRENT_PAYMENTS_MERCHANT_ACCOUNT" required:"true"`
	DownPaymentPercent int    `envconfig:"EVENTRENT_PAYMENTS_DOWN_PAYMENT_PERCENT" default:"30"`
	// AmountToleranceCentavos is the largest extracted-vs-expected gap the
	// verifier still treats as a match.
	AmountToleranceCentavos int `envconfig:"EVENTRENT_PAYMENTS_AMOUNT_TOLERANCE_CENTAVOS" default:"100"`
	// VerifyTimeout is how long a payment may sit in verifying before the
	// sweep hands it back to the customer as processing.
	VerifyTimeout time.Duration `envconfig:"EVENTRENT_PAYMENTS_VERIFY_TIMEOUT" default:"15m"`
}

// HoldsConfig controls reservation hold lifetimes and review policy.
type HoldsConfig struct {
	HoldWindow time.Duration `envconfig:"EVENTRENT_HOLDS_WINDOW" default:"30m"`
	// ReleaseOnReject releases a booking's hold automatically when an admin
	// rejects a flagged payment. Off by default: a rejected receipt does not
	// prove the customer walked away.
	ReleaseOnReject bool          `envconfig:"EVENTRENT_HOLDS_RELEASE_ON_REJECT" default:"false"`
	SweepInterval   time.Duration `envconfig:"EVENTRENT_HOLDS_SWEEP_INTERVAL" default:"5m"`
}

type OcrConfig struct {
	Endpoint string        `envconfig:"EVENTRENT_OCR_ENDPOINT"`
	APIKey   string        `envconfig:"EVENTRENT_OCR_API_KEY"`
	Timeout  time.Duration `envconfig:"EVENTRENT_OCR_TIMEOUT" default:"20s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVENTRENT_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVENTRENT_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EVENTRENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"EVENTRENT_OUTBOX_RETENTION_DAYS" default:"14"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"EVENTRENT_CRON_INTERVAL" default:"5m"`
}

type NotificationsConfig struct {
	RetentionDays  int           `envconfig:"EVENTRENT_NOTIFICATIONS_RETENTION_DAYS" default:"90"`
	IdempotencyTTL time.Duration `envconfig:"EVENTRENT_NOTIFICATIONS_IDEMPOTENCY_TTL" default:"72h"`
}
