package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"reseller-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	AES         AESConfig         `mapstructure:"aes"`
	Log         LogConfig         `mapstructure:"log"`
	Wompi       WompiConfig       `mapstructure:"wompi"`
	Commission  CommissionConfig  `mapstructure:"commission"`
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// IsProduction reports whether the server runs in release mode.
func (s ServerConfig) IsProduction() bool {
	return s.Mode == "release"
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver"`    // postgres, memory
	SeedFile string `mapstructure:"seed_file"` // sellers and products for the memory driver
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`

	// OpTimeout bounds every command so a stalled Redis degrades to the database fallbacks.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimitConfig holds request budgets per endpoint group. A budget of zero disables
// limiting for that group.
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	Webhooks    int64         `mapstructure:"webhooks"`
	WalletRead  int64         `mapstructure:"wallet_read"`
	Withdrawals int64         `mapstructure:"withdrawals"`
	Orders      int64         `mapstructure:"orders"`
	Settings    int64         `mapstructure:"settings"`
	Admin       int64         `mapstructure:"admin"`
}

// Groups returns the budgets keyed by endpoint group name.
func (r RateLimitConfig) Groups() map[string]int64 {
	return map[string]int64{
		"webhooks":    r.Webhooks,
		"wallet_read": r.WalletRead,
		"withdrawals": r.Withdrawals,
		"orders":      r.Orders,
		"settings":    r.Settings,
		"admin":       r.Admin,
	}
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key, encrypts payout details
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type WompiConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	PublicKey     string        `mapstructure:"public_key"`
	PrivateKey    string        `mapstructure:"private_key"`
	EventsSecret  string        `mapstructure:"events_secret"`
	Currency      string        `mapstructure:"currency"`
	RedirectURL   string        `mapstructure:"redirect_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    uint64        `mapstructure:"max_retries"`
	SkipSignature bool          `mapstructure:"skip_signature"`
}

type CommissionConfig struct {
	Rate              float64 `mapstructure:"rate"`
	FallbackRate      float64 `mapstructure:"fallback_rate"`
	AssumedMarginRate float64 `mapstructure:"assumed_margin_rate"`
	PointsDivisor     int64   `mapstructure:"points_divisor"`
}

// Policy converts the configured rates into the domain commission policy.
func (c CommissionConfig) Policy() domain.CommissionPolicy {
	return domain.CommissionPolicy{
		CommissionRate:    decimal.NewFromFloat(c.Rate),
		FallbackRate:      decimal.NewFromFloat(c.FallbackRate),
		AssumedMarginRate: decimal.NewFromFloat(c.AssumedMarginRate),
		PointsDivisor:     c.PointsDivisor,
	}
}

type WalletConfig struct {
	MinimumWithdrawal int64 `mapstructure:"minimum_withdrawal"` // pesos
}

// MinimumWithdrawalAmount returns the default minimum as a decimal amount.
func (w WalletConfig) MinimumWithdrawalAmount() decimal.Decimal {
	return decimal.NewFromInt(w.MinimumWithdrawal)
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type WebhookConfig struct {
	EventTTL time.Duration `mapstructure:"event_ttl"` // redis dedup mark lifetime
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: RSL_ (reseller ledger).
// Nested keys use underscore: RSL_DATABASE_HOST, RSL_WOMPI_EVENTS_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.seed_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "reseller_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.op_timeout", "500ms")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "reseller-ledger")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("wompi.base_url", "https://sandbox.wompi.co/v1")
	v.SetDefault("wompi.public_key", "")
	v.SetDefault("wompi.private_key", "")
	v.SetDefault("wompi.events_secret", "")
	v.SetDefault("wompi.currency", "COP")
	v.SetDefault("wompi.redirect_url", "")
	v.SetDefault("wompi.timeout", "10s")
	v.SetDefault("wompi.max_retries", 3)
	v.SetDefault("wompi.skip_signature", false)
	v.SetDefault("commission.rate", 0.20)
	v.SetDefault("commission.fallback_rate", 0.10)
	v.SetDefault("commission.assumed_margin_rate", 0.30)
	v.SetDefault("commission.points_divisor", 10000)
	v.SetDefault("wallet.minimum_withdrawal", 50000)
	v.SetDefault("idempotency.ttl", "24h")
	v.SetDefault("webhook.event_ttl", "72h")
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.webhooks", 300)
	v.SetDefault("rate_limit.wallet_read", 60)
	v.SetDefault("rate_limit.withdrawals", 5)
	v.SetDefault("rate_limit.orders", 60)
	v.SetDefault("rate_limit.settings", 10)
	v.SetDefault("rate_limit.admin", 120)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("RSL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations the ledger must not run with.
func (c *Config) Validate() error {
	if err := c.Commission.Policy().Validate(); err != nil {
		return fmt.Errorf("commission: %w", err)
	}
	if c.Wallet.MinimumWithdrawal < 0 {
		return errors.New("wallet.minimum_withdrawal cannot be negative")
	}
	if c.Wompi.SkipSignature && c.Server.IsProduction() {
		return errors.New("wompi.skip_signature is not allowed in release mode")
	}
	if c.Server.IsProduction() && !c.Wompi.SkipSignature && c.Wompi.EventsSecret == "" {
		return errors.New("wompi.events_secret is required in release mode")
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
