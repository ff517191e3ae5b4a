package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// Config holds every setting of the service. Values come from flags, then
// the environment (optionally seeded from a .env file), then defaults.
type Config struct {
	// HTTP server
	Host           string   `long:"host" env:"HOST" default:"0.0.0.0" description:"Address to listen on"`
	Port           string   `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	AllowedOrigins []string `long:"allowed-origin" env:"ALLOWED_ORIGINS" env-delim:"," default:"http://localhost:3000" description:"CORS allowed origins"`
	RateLimit      float64  `long:"rate-limit" env:"RATE_LIMIT" default:"5" description:"Requests per second allowed per client IP"`
	MaxRequestSize int64    `long:"max-request-size" env:"MAX_REQUEST_SIZE" default:"1048576" description:"Maximum request body size in bytes"`

	// Storage
	StoreDriver string `long:"store-driver" env:"STORE_DRIVER" default:"bolt" choice:"postgres" choice:"bolt" description:"Item store backend"`
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Postgres connection string (postgres driver)"`
	BoltPath    string `long:"bolt-path" env:"BOLT_PATH" default:"pricewatch.db" description:"Database file (bolt driver)"`

	// Page loading
	ChromiumBin       string        `long:"chromium-bin" env:"CHROMIUM_BIN" description:"Browser binary; downloaded when empty"`
	UserAgent         string        `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36" description:"User agent for page loads"`
	NavigationTimeout time.Duration `long:"navigation-timeout" env:"NAVIGATION_TIMEOUT" default:"20s" description:"Page navigation timeout"`
	SettleDelay       time.Duration `long:"settle-delay" env:"SETTLE_DELAY" default:"5s" description:"Wait after load for client-side rendering"`

	// Extraction
	HomeCurrency       string   `long:"home-currency" env:"HOME_CURRENCY" default:"BRL" description:"Currency assumed when a page declares none"`
	CurrencySymbols    []string `long:"currency-symbol" env:"CURRENCY_SYMBOLS" env-delim:"," default:"R$" description:"Symbols recognized by the free-text price scan"`
	AssetDomainPattern string   `long:"asset-domain-pattern" env:"ASSET_DOMAIN_PATTERN" description:"Regexp for product image hosts; built-in pattern when empty"`
	PriceSelectors     []string `long:"price-selector" env:"PRICE_SELECTORS" env-delim:";" description:"Ordered CSS selectors for price elements; built-in list when empty"`

	// Refresh
	RefreshInterval time.Duration `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"6h" description:"Minimum time between periodic refreshes"`
	CycleBudget     time.Duration `long:"cycle-budget" env:"CYCLE_BUDGET" default:"25m" description:"Time a periodic refresh may run before it is cut short"`
	MaxManualTasks  int           `long:"max-manual-tasks" env:"MAX_MANUAL_TASKS" default:"1" description:"Manual refresh tasks allowed to run at once; page fetches stay sequential either way"`

	// Notifications
	NATSURL              string `long:"nats-url" env:"NATS_URL" description:"NATS server for drop events; disabled when empty"`
	NATSSubject          string `long:"nats-subject" env:"NATS_SUBJECT" default:"pricewatch.drops" description:"Subject for drop events"`
	VAPIDPublicKey       string `long:"vapid-public-key" env:"VAPID_PUBLIC_KEY" description:"Web push public key"`
	VAPIDPrivateKey      string `long:"vapid-private-key" env:"VAPID_PRIVATE_KEY" description:"Web push private key"`
	VAPIDSubscriber      string `long:"vapid-subscriber" env:"VAPID_SUBSCRIBER" default:"admin@localhost" description:"Contact for the push service"`
	PushSubscriptionFile string `long:"push-subscription-file" env:"PUSH_SUBSCRIPTION_FILE" default:"push_subscriptions.json" description:"Stored web push subscriptions"`

	// Logging
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Development logging"`
}

// Load reads .env when present and parses the command line. It returns
// nil, nil when help was requested.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return Parse(args)
}

// Parse parses args and the current environment into a Config
func Parse(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that tags cannot express
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case DriverBolt:
		if c.BoltPath == "" {
			return errors.New("BOLT_PATH is required for the bolt store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	durations := map[string]time.Duration{
		"NAVIGATION_TIMEOUT": c.NavigationTimeout,
		"REFRESH_INTERVAL":   c.RefreshInterval,
		"CYCLE_BUDGET":       c.CycleBudget,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative, got %v", c.SettleDelay)
	}
	if c.CycleBudget > c.RefreshInterval {
		return fmt.Errorf("CYCLE_BUDGET (%v) must not exceed REFRESH_INTERVAL (%v)", c.CycleBudget, c.RefreshInterval)
	}
	if c.MaxManualTasks < 1 {
		return errors.New("MAX_MANUAL_TASKS must be at least 1")
	}
	if c.RateLimit <= 0 {
		return errors.New("RATE_LIMIT must be positive")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// PushEnabled reports whether web push keys are configured
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}
