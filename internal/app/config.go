package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CUPCAKE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CUPCAKE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Shipping    ShippingConfig
	Carrier     CarrierConfig
	Payment     PaymentConfig
}

// AuthConfig holds the key shared with the upstream auth provider.
type AuthConfig struct {
	Secret string `usage:"HMAC key for X-User-Signature (CUPCAKE_AUTH_SECRET)" flag:"auth-secret"`
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

// RedisConfig configures the cart cache and checkout idempotency keys. An
// empty Addr disables both.
type RedisConfig struct {
	Addr           string        `default:"localhost:6379" usage:"Redis address, empty to disable" flag:"redis-addr"`
	Password       string        `default:"" usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database number"`
	CartTTL        time.Duration `default:"5m" usage:"Cart view cache TTL"`
	CartTTLJitter  time.Duration `default:"30s" usage:"Random extra TTL added to cart cache entries"`
	IdempotencyTTL time.Duration `default:"24h" usage:"Lifetime of checkout Idempotency-Key records"`
}

// KafkaConfig configures the outbox relay. No brokers disables publishing;
// events then accumulate in the outbox table.
type KafkaConfig struct {
	Brokers      []string      `default:"" usage:"Kafka bootstrap brokers" flag:"kafka-brokers"`
	Topic        string        `default:"cupcake.orders" usage:"Topic for order events"`
	PollInterval time.Duration `default:"1s" usage:"Outbox poll interval"`
	BatchSize    int           `default:"100" usage:"Max events published per poll"`
}

// ShippingConfig holds the delivery pricing rules. Money is given as decimal
// strings.
type ShippingConfig struct {
	FreeThreshold        string `default:"100.00" usage:"Order value from which standard delivery is free"`
	ExpressCost          string `default:"15.00" usage:"Flat express delivery cost"`
	ExpressDays          int    `default:"3" usage:"Express delivery ETA in days"`
	StandardFallbackCost string `default:"0.00" usage:"Standard cost when the carrier is unavailable"`
	StandardDays         int    `default:"7" usage:"Standard delivery ETA in days"`
	PickupDays           int    `default:"0" usage:"Store pickup ETA in days"`
}

// Policy parses the configured amounts.
func (c ShippingConfig) Policy() (shipping.Policy, error) {
	p := shipping.Policy{
		ExpressDays:  c.ExpressDays,
		StandardDays: c.StandardDays,
		PickupDays:   c.PickupDays,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"free threshold", c.FreeThreshold, &p.FreeThreshold},
		{"express cost", c.ExpressCost, &p.ExpressCost},
		{"standard fallback cost", c.StandardFallbackCost, &p.StandardFallbackCost},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return shipping.Policy{}, errors.Wrapf(err, "shipping %s", f.name)
		}
		if d.IsNegative() {
			return shipping.Policy{}, errors.Errorf("shipping %s must not be negative", f.name)
		}
		*f.dst = d.Round(2)
	}
	if p.ExpressDays < 0 || p.StandardDays < 0 || p.PickupDays < 0 {
		return shipping.Policy{}, errors.New("shipping days must not be negative")
	}
	return p, nil
}

// CarrierConfig configures the postal carrier rate lookup. An empty QuoteURL
// disables it and standard delivery uses the fallback cost.
type CarrierConfig struct {
	ViaCEPURL       string        `default:"https://viacep.com.br/ws" usage:"ViaCEP base URL" flag:"viacep-url"`
	QuoteURL        string        `default:"" usage:"Carrier quote endpoint, empty to disable" flag:"carrier-quote-url"`
	OriginZip       string        `default:"01310-100" usage:"Postal code parcels ship from"`
	Timeout         time.Duration `default:"3s" usage:"Timeout of each carrier HTTP call"`
	BreakerFailures uint32        `default:"5" usage:"Consecutive failures that open the breaker"`
	BreakerCooldown time.Duration `default:"30s" usage:"How long the breaker stays open"`
}

// PaymentConfig tunes the simulated payment provider.
type PaymentConfig struct {
	Timeout     time.Duration `default:"10s" usage:"Timeout of a single charge"`
	Delay       time.Duration `default:"1s" usage:"Simulated provider latency"`
	SuccessRate float64       `default:"0.9" usage:"Share of approved charges, 0..1"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return load(aconfig.Config{
		EnvPrefix: "CUPCAKE",
		Files:     []string{"config.yaml", "/etc/cupcake/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func load(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CUPCAKE_DATABASE_URL or DATABASE_URL")
	case c.Auth.Secret == "":
		return errors.New("auth secret is required: set CUPCAKE_AUTH_SECRET")
	case c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1:
		return errors.Errorf("payment success rate %v is outside 0..1", c.Payment.SuccessRate)
	case c.Payment.Timeout <= 0:
		return errors.New("payment timeout must be positive")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	if _, err := c.Shipping.Policy(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CUPCAKE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	// aconfig turns an empty default into a single empty element.
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
}
