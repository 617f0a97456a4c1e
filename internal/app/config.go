package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/lojavirtual/orderflow/internal/idempotency"
	"github.com/lojavirtual/orderflow/internal/notify"
	"github.com/lojavirtual/orderflow/internal/paymentsignal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the service configuration, loadable from environment variables
// (ORDERFLOW_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string        `usage:"PostgreSQL connection URL (ORDERFLOW_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL      string        `usage:"Redis URL for idempotency keys and rate limits (ORDERFLOW_REDIS_URL or REDIS_URL); empty keeps both in process" flag:"redis-url"`
	APIKeyPepper  string        `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	WebhookSecret string        `usage:"Payment webhook signing secret; empty disables verification" flag:"webhook-secret"`
	NotifyTimeout time.Duration `default:"10s" usage:"Deadline for status notifications after a commit"`
	DB            DBConfig
	Gateway       paymentsignal.GatewayConfig
	Poller        paymentsignal.PollerConfig
	Kafka         notify.KafkaConfig
	Email         notify.EmailConfig
	WhatsApp      notify.WhatsAppConfig
	Idempotency   idempotency.Config
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// DBConfig sizes the PostgreSQL pool.
type DBConfig struct {
	MaxConns int32 `default:"10" usage:"Maximum pool connections"`
	MinConns int32 `default:"0" usage:"Minimum idle pool connections"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
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

// LoadConfig loads configuration from environment variables, flags and YAML
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "ORDERFLOW",
		Files:     []string{"config.yaml", "/etc/orderflow/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ORDERFLOW_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set ORDERFLOW_API_KEY_PEPPER")
	}
	if c.Email.Enabled && c.Email.From == "" {
		return errors.New("email sender is required when email notifications are enabled")
	}
	return nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms (DATABASE_URL, REDIS_URL, PORT) onto the config.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
