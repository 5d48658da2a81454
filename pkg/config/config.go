package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	API          APIConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Security     SecurityConfig
	Marketplace  MarketplaceConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETSETTLE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETSETTLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETSETTLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETSETTLE_LOG_WARN_STACK" default:"false"`
	MetricsPort  string `envconfig:"MARKETSETTLE_METRICS_PORT" default:"9090"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETSETTLE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETSETTLE_DB_DSN"`
	Driver string `envconfig:"MARKETSETTLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETSETTLE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETSETTLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETSETTLE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETSETTLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETSETTLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETSETTLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETSETTLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETSETTLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETSETTLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETSETTLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETSETTLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETSETTLE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETSETTLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETSETTLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETSETTLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETSETTLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETSETTLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETSETTLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETSETTLE_REDIS_WRITE_TIMEOUT" default:"5s"`
	// IdempotencyTTL bounds how long a replayable response is kept for an Idempotency-Key.
	IdempotencyTTL time.Duration `envconfig:"MARKETSETTLE_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// APIConfig tunes the HTTP surface.
type APIConfig struct {
	CORSOrigins        []string `envconfig:"MARKETSETTLE_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitPerMinute int      `envconfig:"MARKETSETTLE_RATE_LIMIT_PER_MINUTE" default:"120"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETSETTLE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETSETTLE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETSETTLE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETSETTLE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETSETTLE_AUTO_MIGRATE" default:"false"`
}

// SecurityConfig holds the key used to seal bank account numbers at rest.
// The key is 32 bytes, base64 encoded.
type SecurityConfig struct {
	BankAccountKey string `envconfig:"MARKETSETTLE_BANK_ACCOUNT_KEY"`
}

type MarketplaceConfig struct {
	DisputeWindowDays     int    `envconfig:"MARKETSETTLE_DISPUTE_WINDOW_DAYS" default:"14"`
	DisputeResponseHours  int    `envconfig:"MARKETSETTLE_DISPUTE_RESPONSE_HOURS" default:"72"`
	DisputeResolutionDays int    `envconfig:"MARKETSETTLE_DISPUTE_RESOLUTION_DAYS" default:"14"`
	ProposalExpiryHours   int    `envconfig:"MARKETSETTLE_PROPOSAL_EXPIRY_HOURS" default:"72"`
	PayoutHoldDays        int    `envconfig:"MARKETSETTLE_PAYOUT_HOLD_DAYS" default:"7"`
	PayoutFeePercent      string `envconfig:"MARKETSETTLE_PAYOUT_FEE_PERCENT" default:"5.00"`
	MoneyTolerance        string `envconfig:"MARKETSETTLE_MONEY_TOLERANCE" default:"0.0001"`
	NumberRetryAttempts   int    `envconfig:"MARKETSETTLE_NUMBER_RETRY_ATTEMPTS" default:"5"`
}

// DisputeWindow is the period after delivery during which a buyer may open a dispute.
func (m MarketplaceConfig) DisputeWindow() time.Duration {
	return time.Duration(m.DisputeWindowDays) * 24 * time.Hour
}

func (m MarketplaceConfig) DisputeResponseWindow() time.Duration {
	return time.Duration(m.DisputeResponseHours) * time.Hour
}

func (m MarketplaceConfig) DisputeResolutionWindow() time.Duration {
	return time.Duration(m.DisputeResolutionDays) * 24 * time.Hour
}

func (m MarketplaceConfig) ProposalExpiry() time.Duration {
	return time.Duration(m.ProposalExpiryHours) * time.Hour
}

func (m MarketplaceConfig) PayoutHold() time.Duration {
	return time.Duration(m.PayoutHoldDays) * 24 * time.Hour
}

// FeeRate returns the payout fee as a fraction (5.00 -> 0.05).
func (m MarketplaceConfig) FeeRate() decimal.Decimal {
	pct, err := decimal.NewFromString(strings.TrimSpace(m.PayoutFeePercent))
	if err != nil {
		return decimal.Zero
	}
	return pct.Div(decimal.NewFromInt(100))
}

func (m MarketplaceConfig) Tolerance() decimal.Decimal {
	tol, err := decimal.NewFromString(strings.TrimSpace(m.MoneyTolerance))
	if err != nil {
		return decimal.Zero
	}
	return tol
}

func (m MarketplaceConfig) validate() error {
	if m.DisputeWindowDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvDisputeWindowDays)
	}
	if m.PayoutHoldDays < 0 {
		return fmt.Errorf("%s cannot be negative", EnvPayoutHoldDays)
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(m.PayoutFeePercent))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvPayoutFeePercent, err)
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvPayoutFeePercent)
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(m.MoneyTolerance)); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvMoneyTolerance, err)
	}
	return nil
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MARKETSETTLE_GCP_PROJECT_ID"`
	CredentialsFile string `envconfig:"MARKETSETTLE_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig maps outbox destinations to topics. Empty topics are not dispatched.
type PubSubConfig struct {
	WebhookTopic        string `envconfig:"MARKETSETTLE_PUBSUB_WEBHOOK_TOPIC" default:"ms-webhook-events"`
	EmailTopic          string `envconfig:"MARKETSETTLE_PUBSUB_EMAIL_TOPIC" default:"ms-email-events"`
	SMSTopic            string `envconfig:"MARKETSETTLE_PUBSUB_SMS_TOPIC" default:"ms-sms-events"`
	PaymentGatewayTopic string `envconfig:"MARKETSETTLE_PUBSUB_PAYMENT_GATEWAY_TOPIC" default:"ms-payment-gateway-events"`
	AnalyticsTopic      string `envconfig:"MARKETSETTLE_PUBSUB_ANALYTICS_TOPIC" default:"ms-analytics-events"`
	NotificationTopic   string `envconfig:"MARKETSETTLE_PUBSUB_NOTIFICATION_TOPIC" default:"ms-notification-events"`

	InvoicingSubscription string `envconfig:"MARKETSETTLE_PUBSUB_INVOICING_SUBSCRIPTION" default:"ms-notification-events-invoicing"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MARKETSETTLE_OUTBOX_DISPATCH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MARKETSETTLE_OUTBOX_DISPATCH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MARKETSETTLE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MARKETSETTLE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARKETSETTLE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"MARKETSETTLE_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
