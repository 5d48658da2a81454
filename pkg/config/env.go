package config

const (
	EnvPrefix = "MARKETSETTLE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "MARKETSETTLE_APP_ENV"
	EnvPort       = "MARKETSETTLE_APP_PORT"
	EnvDBDSN      = "MARKETSETTLE_DB_DSN"
	EnvDBHost     = "MARKETSETTLE_DB_HOST"
	EnvDBUser     = "MARKETSETTLE_DB_USER"
	EnvDBName     = "MARKETSETTLE_DB_NAME"
	EnvRedisURL   = "MARKETSETTLE_REDIS_URL"
	EnvJWTSecret  = "MARKETSETTLE_JWT_SECRET"
	EnvJWTIssuer  = "MARKETSETTLE_JWT_ISSUER"
	EnvJWTExpMins = "MARKETSETTLE_JWT_EXPIRATION_MINUTES"

	EnvDisputeWindowDays = "MARKETSETTLE_DISPUTE_WINDOW_DAYS"
	EnvPayoutHoldDays    = "MARKETSETTLE_PAYOUT_HOLD_DAYS"
	EnvPayoutFeePercent  = "MARKETSETTLE_PAYOUT_FEE_PERCENT"
	EnvMoneyTolerance    = "MARKETSETTLE_MONEY_TOLERANCE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
