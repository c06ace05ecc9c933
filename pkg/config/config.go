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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Automation   AutomationConfig
	Accrual      AccrualConfig
	Commission   CommissionConfig
	SpecialBonus SpecialBonusConfig
	RateLimit    RateLimitConfig
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
	if err := cfg.Commission.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NEXAVEST_APP_ENV" required:"true"`
	Port         string `envconfig:"NEXAVEST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NEXAVEST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NEXAVEST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NEXAVEST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NEXAVEST_DB_DSN"`
	Driver string `envconfig:"NEXAVEST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NEXAVEST_DB_HOST"`
	LegacyPort     int    `envconfig:"NEXAVEST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NEXAVEST_DB_USER"`
	LegacyPassword string `envconfig:"NEXAVEST_DB_PASSWORD"`
	LegacyName     string `envconfig:"NEXAVEST_DB_NAME"`
	LegacySSLMode  string `envconfig:"NEXAVEST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NEXAVEST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NEXAVEST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NEXAVEST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NEXAVEST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NEXAVEST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NEXAVEST_REDIS_ADDR"`
	Password     string        `envconfig:"NEXAVEST_REDIS_PASSWORD"`
	DB           int           `envconfig:"NEXAVEST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NEXAVEST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NEXAVEST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NEXAVEST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NEXAVEST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NEXAVEST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type AutomationConfig struct {
	TickInterval time.Duration `envconfig:"NEXAVEST_AUTOMATION_TICK_INTERVAL" default:"1h"`
	LockTTL      time.Duration `envconfig:"NEXAVEST_AUTOMATION_LOCK_TTL" default:"2h"`
}

type AccrualConfig struct {
	BatchSize int `envconfig:"NEXAVEST_ACCRUAL_BATCH_SIZE" default:"200"`
}

// CommissionConfig controls referral commission eligibility. Policy "strict"
// pays only for active-or-completed positions with a finished first cycle;
// "relaxed" also accepts pending positions for deterministic end-to-end tests.
type CommissionConfig struct {
	Policy    string `envconfig:"NEXAVEST_COMMISSION_POLICY" default:"strict"`
	BatchSize int    `envconfig:"NEXAVEST_COMMISSION_BATCH_SIZE" default:"200"`
}

const (
	CommissionPolicyStrict  = "strict"
	CommissionPolicyRelaxed = "relaxed"
)

func (c CommissionConfig) validate() error {
	switch c.Policy {
	case CommissionPolicyStrict, CommissionPolicyRelaxed:
		return nil
	}
	return fmt.Errorf("invalid commission policy %q", c.Policy)
}

func (c CommissionConfig) IsRelaxed() bool {
	return c.Policy == CommissionPolicyRelaxed
}

type SpecialBonusConfig struct {
	RatePercent string `envconfig:"NEXAVEST_SPECIAL_BONUS_RATE_PERCENT" default:"5"`
}

// Rate returns the bonus percentage as a decimal fraction (5 -> 0.05).
func (s SpecialBonusConfig) Rate() (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(s.RatePercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid special bonus rate %q: %w", s.RatePercent, err)
	}
	if pct.IsNegative() {
		return decimal.Zero, fmt.Errorf("special bonus rate must be non-negative, got %s", pct)
	}
	return pct.Div(decimal.NewFromInt(100)), nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"NEXAVEST_AUTO_MIGRATE" default:"false"`
}

// RateLimitConfig throttles mutating API requests per client IP. A zero limit
// or window disables the middleware.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"NEXAVEST_API_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"NEXAVEST_API_RATE_LIMIT" default:"120"`
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
