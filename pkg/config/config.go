package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Backend  BackendConfig
	Session  SessionConfig
	Redis    RedisConfig
	DB       DBConfig
	Gateway  GatewayConfig
	Stripe   StripeConfig
	Square   SquareConfig
	JWT      JWTConfig
	Dev      DevBackendConfig
	Checkout CheckoutConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	MetricsAddr  string `envconfig:"STOREFRONT_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig points the client at the storefront REST surface.
type BackendConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_BACKEND_BASE_URL" default:"http://localhost:8000"`
	RequestTimeout time.Duration `envconfig:"STOREFRONT_BACKEND_REQUEST_TIMEOUT" default:"15s"`
}

type SessionConfig struct {
	Store string        `envconfig:"STOREFRONT_SESSION_STORE" default:"memory"`
	Key   string        `envconfig:"STOREFRONT_SESSION_KEY" default:"default"`
	TTL   time.Duration `envconfig:"STOREFRONT_SESSION_TTL" default:"24h"`
	Token string        `envconfig:"STOREFRONT_SESSION_TOKEN"`
	Email string        `envconfig:"STOREFRONT_SESSION_EMAIL"`
}

// UsesRedis reports whether sessions are persisted in Redis.
func (s SessionConfig) UsesRedis() bool {
	return strings.EqualFold(strings.TrimSpace(s.Store), SessionStoreRedis)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// DBConfig configures the local receipts ledger.
type DBConfig struct {
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"STOREFRONT_DB_DSN" default:"file:storefront.db?cache=shared"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type GatewayConfig struct {
	Provider string `envconfig:"STOREFRONT_GATEWAY_PROVIDER" default:"stripe"`
}

// Normalized returns the lower-cased provider name.
func (g GatewayConfig) Normalized() string {
	provider := strings.TrimSpace(strings.ToLower(g.Provider))
	if provider == "" {
		return GatewayStripe
	}
	return provider
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront-dev"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// DevBackendConfig drives cmd/devbackend.
type DevBackendConfig struct {
	Port            string        `envconfig:"STOREFRONT_DEV_PORT" default:"8000"`
	IdempotencyTTL  time.Duration `envconfig:"STOREFRONT_DEV_IDEMPOTENCY_TTL" default:"24h"`
	SeedCatalog     bool          `envconfig:"STOREFRONT_DEV_SEED_CATALOG" default:"true"`
	UseRedisStorage bool          `envconfig:"STOREFRONT_DEV_USE_REDIS" default:"false"`
}

type CheckoutConfig struct {
	Currency string `envconfig:"STOREFRONT_CURRENCY" default:"inr"`
}

func (c *Config) validate() error {
	switch c.Gateway.Normalized() {
	case GatewayStripe, GatewaySquare, GatewayFake:
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvGatewayProvider, GatewayStripe, GatewaySquare, GatewayFake)
	}
	if c.Session.UsesRedis() && c.Redis.URL == "" && c.Redis.Address == "" {
		return fmt.Errorf("%s or %s is required when %s=%s", EnvRedisURL, EnvRedisAddr, EnvSessionStore, SessionStoreRedis)
	}
	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("%s must not be negative", EnvBackendRequestTimeout)
	}
	return nil
}
