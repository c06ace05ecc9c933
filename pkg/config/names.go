package config

// EnvPrefix scopes every configuration variable the platform reads.
const EnvPrefix = "NEXAVEST"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "NEXAVEST_APP_ENV"
	EnvPort     = "NEXAVEST_APP_PORT"
	EnvDBDSN    = "NEXAVEST_DB_DSN"
	EnvDBHost   = "NEXAVEST_DB_HOST"
	EnvDBUser   = "NEXAVEST_DB_USER"
	EnvDBName   = "NEXAVEST_DB_NAME"
	EnvRedisURL = "NEXAVEST_REDIS_URL"

	EnvCommissionPolicy = "NEXAVEST_COMMISSION_POLICY"
	EnvSpecialBonusRate = "NEXAVEST_SPECIAL_BONUS_RATE_PERCENT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
