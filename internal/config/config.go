package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/utafrali/storefront-checkout/internal/identity"
	pkgconfig "github.com/utafrali/storefront-checkout/pkg/config"
)

// Config holds all configuration for the storefront checkout service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CHECKOUT_HTTP_PORT" envDefault:"8014"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"CHECKOUT_DB_NAME" envDefault:"storefront_checkout"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
	RedisTimeout  int    `env:"REDIS_TIMEOUT_MS" envDefault:"200"`

	// Read-through cache TTLs (seconds)
	CustomerCacheTTL int `env:"CUSTOMER_CACHE_TTL_SECONDS" envDefault:"60"`
	BasketCacheTTL   int `env:"BASKET_CACHE_TTL_SECONDS" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Downstream services
	IdentityServiceURL string `env:"IDENTITY_SERVICE_URL" envDefault:"http://localhost:8011"`
	BasketServiceURL   string `env:"BASKET_SERVICE_URL" envDefault:"http://localhost:8012"`
	CustomerServiceURL string `env:"CUSTOMER_SERVICE_URL" envDefault:"http://localhost:8013"`

	// Circuit breaker settings for downstream service calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Shopper bearer tokens are HS256, signed by the identity service.
	TokenSecret string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`

	// Passwordless login. Leaving the callback URI empty disables it.
	PasswordlessCallbackURI string `env:"PASSWORDLESS_CALLBACK_URI" envDefault:""`
	AppOrigin               string `env:"APP_ORIGIN" envDefault:"http://localhost:3000"`

	// Identity error classification
	UnauthorizedPattern       string   `env:"IDENTITY_UNAUTHORIZED_PATTERN"`
	UserNotFoundPattern       string   `env:"IDENTITY_USER_NOT_FOUND_PATTERN"`
	FeatureUnavailablePattern []string `env:"IDENTITY_FEATURE_UNAVAILABLE_PATTERNS" envSeparator:";"`

	// Checkout flow lifetime and housekeeping
	FlowTTLMins       int `env:"CHECKOUT_FLOW_TTL_MINUTES" envDefault:"30"`
	SweepIntervalMins int `env:"CHECKOUT_SWEEP_INTERVAL_MINUTES" envDefault:"5"`
	MergeTimeoutSecs  int `env:"BASKET_MERGE_TIMEOUT_SECONDS" envDefault:"15"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

const defaultTokenSecret = "your-secret-key-change-in-production"

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment != "development" && c.TokenSecret == defaultTokenSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.FlowTTLMins < 1 {
		return fmt.Errorf("CHECKOUT_FLOW_TTL_MINUTES must be positive, got %d", c.FlowTTLMins)
	}
	if c.SweepIntervalMins < 1 {
		return fmt.Errorf("CHECKOUT_SWEEP_INTERVAL_MINUTES must be positive, got %d", c.SweepIntervalMins)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for name, rawURL := range map[string]string{
		"IDENTITY_SERVICE_URL": c.IdentityServiceURL,
		"BASKET_SERVICE_URL":   c.BasketServiceURL,
		"CUSTOMER_SERVICE_URL": c.CustomerServiceURL,
		"APP_ORIGIN":           c.AppOrigin,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	if _, err := c.IdentityPatterns(); err != nil {
		return err
	}
	return nil
}

// IdentityPatterns compiles the configured identity error patterns. Unset
// patterns fall back to the built-in ones.
func (c *Config) IdentityPatterns() (identity.Patterns, error) {
	unauthorized := c.UnauthorizedPattern
	if unauthorized == "" {
		unauthorized = identity.DefaultUnauthorizedPattern
	}
	userNotFound := c.UserNotFoundPattern
	if userNotFound == "" {
		userNotFound = identity.DefaultUserNotFoundPattern
	}
	featureUnavailable := c.FeatureUnavailablePattern
	if len(featureUnavailable) == 0 {
		featureUnavailable = identity.DefaultFeatureUnavailablePattern
	}
	p, err := identity.CompilePatterns(unauthorized, userNotFound, featureUnavailable)
	if err != nil {
		return identity.Patterns{}, fmt.Errorf("identity error patterns: %w", err)
	}
	return p, nil
}

// PasswordlessEnabled reports whether a passwordless callback is configured.
func (c *Config) PasswordlessEnabled() bool {
	return c.PasswordlessCallbackURI != ""
}

// FlowTTL is the lifetime of a checkout flow.
func (c *Config) FlowTTL() time.Duration {
	return time.Duration(c.FlowTTLMins) * time.Minute
}

// SweepInterval is how often expired flows are deleted.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMins) * time.Minute
}

// RedisOpTimeout bounds each Redis dial, read and write.
func (c *Config) RedisOpTimeout() time.Duration {
	return time.Duration(c.RedisTimeout) * time.Millisecond
}

// MergeTimeout bounds a background basket merge.
func (c *Config) MergeTimeout() time.Duration {
	return time.Duration(c.MergeTimeoutSecs) * time.Second
}
