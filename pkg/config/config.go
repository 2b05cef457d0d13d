package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Booking      BookingConfig
	Payout       PayoutConfig
	Sweeper      SweeperConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"VENTURE_APP_ENV" required:"true"`
	Port         string `envconfig:"VENTURE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENTURE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENTURE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VENTURE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VENTURE_DB_DSN"`
	Driver string `envconfig:"VENTURE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENTURE_DB_HOST"`
	LegacyPort     int    `envconfig:"VENTURE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENTURE_DB_USER"`
	LegacyPassword string `envconfig:"VENTURE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENTURE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENTURE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENTURE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENTURE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENTURE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENTURE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENTURE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENTURE_REDIS_ADDR"`
	Password     string        `envconfig:"VENTURE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENTURE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENTURE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENTURE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENTURE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENTURE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENTURE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VENTURE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VENTURE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VENTURE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig wires the external payment gateway client.
type GatewayConfig struct {
	Name           string        `envconfig:"VENTURE_GATEWAY_NAME" default:"paygate"`
	BaseURL        string        `envconfig:"VENTURE_GATEWAY_BASE_URL" required:"true"`
	Secret         string        `envconfig:"VENTURE_GATEWAY_SECRET" required:"true"`
	Currency       string        `envconfig:"VENTURE_GATEWAY_CURRENCY" default:"IDR"`
	RequestTimeout time.Duration `envconfig:"VENTURE_GATEWAY_REQUEST_TIMEOUT" default:"15s"`
	SessionTTL     time.Duration `envconfig:"VENTURE_GATEWAY_SESSION_TTL" default:"1h"`
}

type BookingConfig struct {
	ApprovalTimeout      time.Duration `envconfig:"VENTURE_BOOKING_APPROVAL_TIMEOUT" default:"24h"`
	PaymentTimeout       time.Duration `envconfig:"VENTURE_BOOKING_PAYMENT_TIMEOUT" default:"2h"`
	DefaultCommissionBPS int           `envconfig:"VENTURE_BOOKING_DEFAULT_COMMISSION_BPS" default:"1000"`
}

type PayoutConfig struct {
	HoldbackDays      int    `envconfig:"VENTURE_PAYOUT_HOLDBACK_DAYS" default:"3"`
	DefaultPercentage string `envconfig:"VENTURE_PAYOUT_DEFAULT_PERCENTAGE" default:"0.8"`
}

type SweeperConfig struct {
	Interval         time.Duration `envconfig:"VENTURE_SWEEPER_INTERVAL" default:"1m"`
	CompletionWindow time.Duration `envconfig:"VENTURE_SWEEPER_COMPLETION_WINDOW" default:"168h"`
	LockTTL          time.Duration `envconfig:"VENTURE_SWEEPER_LOCK_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"VENTURE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"VENTURE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"VENTURE_PUBSUB_NOTIFICATION_TOPIC" default:"vt-notification-events"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VENTURE_AUTO_MIGRATE" default:"false"`
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
