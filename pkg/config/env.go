package config

const (
	EnvPrefix = "BASKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BASKET_APP_ENV"
	EnvLogLevel = "BASKET_LOG_LEVEL"

	EnvDBDSN  = "BASKET_DB_DSN"
	EnvDBHost = "BASKET_DB_HOST"
	EnvDBPort = "BASKET_DB_PORT"
	EnvDBUser = "BASKET_DB_USER"
	EnvDBPass = "BASKET_DB_PASSWORD"
	EnvDBName = "BASKET_DB_NAME"

	EnvRedisURL = "BASKET_REDIS_URL"

	EnvInvolvementLookback = "BASKET_INVOLVEMENT_LOOKBACK"
	EnvRoundRobinScope     = "BASKET_ROUND_ROBIN_SCOPE"
	EnvTelesaleRoles       = "BASKET_TELESALE_ROLES"
	EnvCronInterval        = "BASKET_CRON_INTERVAL"

	EnvGCPProjectID            = "BASKET_GCP_PROJECT_ID"
	EnvPubSubBasketTopic       = "BASKET_PUBSUB_BASKET_EVENTS_TOPIC"
	EnvOrderEventsSubscription = "BASKET_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"
	EnvOutboxBatchSize         = "BASKET_OUTBOX_PUBLISH_BATCH_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
