package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	GatewayStripe = "stripe"
	GatewaySquare = "square"
	GatewayFake   = "fake"
)

const (
	EnvAppEnv                = "STOREFRONT_APP_ENV"
	EnvLogLevel              = "STOREFRONT_LOG_LEVEL"
	EnvBackendBaseURL        = "STOREFRONT_BACKEND_BASE_URL"
	EnvBackendRequestTimeout = "STOREFRONT_BACKEND_REQUEST_TIMEOUT"
	EnvSessionStore          = "STOREFRONT_SESSION_STORE"
	EnvRedisURL              = "STOREFRONT_REDIS_URL"
	EnvRedisAddr             = "STOREFRONT_REDIS_ADDR"
	EnvDBDriver              = "STOREFRONT_DB_DRIVER"
	EnvDBDSN                 = "STOREFRONT_DB_DSN"
	EnvGatewayProvider       = "STOREFRONT_GATEWAY_PROVIDER"
	EnvStripeAPIKey          = "STOREFRONT_STRIPE_API_KEY"
	EnvJWTSecret             = "STOREFRONT_JWT_SECRET"
)
