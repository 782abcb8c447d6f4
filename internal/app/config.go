package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/order"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (BISTRO_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string        `usage:"PostgreSQL connection URL (BISTRO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage        string        `default:"postgres" usage:"Storage backend: postgres or memory"`
	Timezone       string        `default:"Asia/Ho_Chi_Minh" usage:"Operating timezone for checkout hours and statistics"`
	RequestTimeout time.Duration `default:"10s" usage:"Deadline of a single API request" flag:"request-timeout"`
	Checkout       CheckoutConfig
	Auth           AuthConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// CheckoutConfig is the daily window in which orders are accepted.
type CheckoutConfig struct {
	OpenHour            int `default:"7"`
	OpenMinute          int `default:"0"`
	CloseHour           int `default:"21"`
	CloseMinute         int `default:"30"`
	DeliveryCloseHour   int `default:"21"`
	DeliveryCloseMinute int `default:"0"`
}

// AdmissionWindow converts the configured hours.
func (c CheckoutConfig) AdmissionWindow() order.AdmissionWindow {
	return order.AdmissionWindow{
		OpenHour:            c.OpenHour,
		OpenMinute:          c.OpenMinute,
		CloseHour:           c.CloseHour,
		CloseMinute:         c.CloseMinute,
		DeliveryCloseHour:   c.DeliveryCloseHour,
		DeliveryCloseMinute: c.DeliveryCloseMinute,
	}
}

// AuthConfig verifies access tokens issued by the account service.
type AuthConfig struct {
	JWTSecret string `usage:"HMAC secret of HS256 access tokens (BISTRO_AUTH_JWT_SECRET)" flag:"jwt-secret"`
}

// RedisConfig enables the statistics cache when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address of the statistics cache; empty disables caching"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"1m" usage:"Lifetime of cached statistics"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers; empty logs order events instead"`
	Topic   string   `default:"bistro.orders" usage:"Topic of order events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BISTRO",
		Files:     []string{"config.yaml", "/etc/bistro/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set BISTRO_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set BISTRO_AUTH_JWT_SECRET")
	}
	return nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL and PORT
// variables of hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
