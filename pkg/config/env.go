package config

const (
	EnvPrefix = "LIBRARY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "LIBRARY_APP_ENV"
	EnvPort     = "LIBRARY_APP_PORT"
	EnvLogLevel = "LIBRARY_LOG_LEVEL"

	EnvDBDSN    = "LIBRARY_DB_DSN"
	EnvDBDriver = "LIBRARY_DB_DRIVER"
	EnvDBHost   = "LIBRARY_DB_HOST"
	EnvDBPort   = "LIBRARY_DB_PORT"
	EnvDBUser   = "LIBRARY_DB_USER"
	EnvDBPass   = "LIBRARY_DB_PASSWORD"
	EnvDBName   = "LIBRARY_DB_NAME"

	EnvRedisURL = "LIBRARY_REDIS_URL"

	EnvJWTSecret              = "LIBRARY_JWT_SECRET"
	EnvJWTIssuer              = "LIBRARY_JWT_ISSUER"
	EnvJWTExpMins             = "LIBRARY_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "LIBRARY_REFRESH_TOKEN_TTL_MINUTES"

	EnvLoanPeriodDays = "LIBRARY_LOAN_PERIOD_DAYS"
	EnvRabbitMQURL    = "LIBRARY_RABBITMQ_URL"
	EnvCronInterval   = "LIBRARY_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
