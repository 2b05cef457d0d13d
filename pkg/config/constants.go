package config

const (
	EnvPrefix = "VENTURE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "VENTURE_DB_DSN"
	EnvDBHost = "VENTURE_DB_HOST"
	EnvDBUser = "VENTURE_DB_USER"
	EnvDBName = "VENTURE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
