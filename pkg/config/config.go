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
	FeatureFlags FeatureFlagsConfig
	Routing      RoutingConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ops          OpsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Routing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BASKET_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"BASKET_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BASKET_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BASKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"BASKET_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"BASKET_DB_DSN"`
	Driver string `envconfig:"BASKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BASKET_DB_HOST"`
	LegacyPort     int    `envconfig:"BASKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BASKET_DB_USER"`
	LegacyPassword string `envconfig:"BASKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"BASKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"BASKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BASKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BASKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BASKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BASKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// LockTimeout bounds how long a transition waits on a customer row lock.
	LockTimeout time.Duration `envconfig:"BASKET_DB_LOCK_TIMEOUT" default:"5s"`
	// SlowQueryThreshold logs statements slower than this. Zero disables.
	SlowQueryThreshold time.Duration `envconfig:"BASKET_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BASKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BASKET_REDIS_ADDR"`
	Password     string        `envconfig:"BASKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"BASKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BASKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BASKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BASKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BASKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BASKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"BASKET_AUTO_MIGRATE" default:"false"`
	AgingDryRun    bool `envconfig:"BASKET_AGING_DRY_RUN" default:"false"`
	CatalogCaching bool `envconfig:"BASKET_CATALOG_CACHE" default:"true"`
}

// RoutingConfig carries the tunables of the routing engine.
type RoutingConfig struct {
	InvolvementLookback time.Duration `envconfig:"BASKET_INVOLVEMENT_LOOKBACK" default:"168h"`
	CatalogCacheTTL     time.Duration `envconfig:"BASKET_CATALOG_CACHE_TTL" default:"5m"`
	RoundRobinScope     string        `envconfig:"BASKET_ROUND_ROBIN_SCOPE" default:"upsell"`
	TelesaleRoles       []string      `envconfig:"BASKET_TELESALE_ROLES" default:"telesale,telesale_lead"`
	AgingBatchSize      int           `envconfig:"BASKET_AGING_BATCH_SIZE" default:"500"`
}

func (r RoutingConfig) validate() error {
	if r.InvolvementLookback <= 0 {
		return fmt.Errorf("%s must be positive", EnvInvolvementLookback)
	}
	if strings.TrimSpace(r.RoundRobinScope) == "" {
		return fmt.Errorf("%s is required", EnvRoundRobinScope)
	}
	if len(r.TelesaleRoles) == 0 {
		return fmt.Errorf("%s is required", EnvTelesaleRoles)
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BASKET_CRON_INTERVAL" default:"1h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BASKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BASKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BASKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BasketEventsTopic       string `envconfig:"BASKET_PUBSUB_BASKET_EVENTS_TOPIC" default:"basket-events"`
	OrderEventsSubscription string `envconfig:"BASKET_PUBSUB_ORDER_EVENTS_SUBSCRIPTION" default:"order-status-basket-engine"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BASKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BASKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BASKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// RetentionDays keeps published rows this long before the cron prunes them.
	RetentionDays       int `envconfig:"BASKET_OUTBOX_RETENTION_DAYS" default:"14"`
	ParkedRetentionDays int `envconfig:"BASKET_OUTBOX_PARKED_RETENTION_DAYS" default:"90"`
}

// OpsConfig controls the health and metrics listener every long-running
// binary starts. An empty Addr disables it.
type OpsConfig struct {
	Addr         string        `envconfig:"BASKET_OPS_ADDR" default:":9090"`
	ReadyTimeout time.Duration `envconfig:"BASKET_OPS_READY_TIMEOUT" default:"2s"`
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
