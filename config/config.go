package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// StoreConfig selects the backing store once per process.
type StoreConfig struct {
	Driver         string        `mapstructure:"driver"` // postgres, memory
	SeedDemoData   bool          `mapstructure:"seed_demo_data"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
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
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig configures operator token validation. An empty secret disables auth.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// LedgerConfig tunes tag debouncing and balance mutation.
type LedgerConfig struct {
	DebounceCooldown      time.Duration `mapstructure:"debounce_cooldown"`
	DefaultOpeningBalance int64         `mapstructure:"default_opening_balance"`
	AutoRegister          bool          `mapstructure:"auto_register"`
	ReadRetries           int           `mapstructure:"read_retries"`
	OperationTimeout      time.Duration `mapstructure:"operation_timeout"`
	CurrencyExponent      int32         `mapstructure:"currency_exponent"`
}

// TerminalConfig binds a local tag reader to a fixed action.
type TerminalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Device  string `mapstructure:"device"`
	Mode    string `mapstructure:"mode"` // pay, topup
	ShopID  int64  `mapstructure:"shop_id"`
	Amount  int64  `mapstructure:"amount"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from an optional .env file, a config file and
// environment variables. Environment variables override file values.
// Prefix: POS_. Nested keys use underscore: POS_DATABASE_HOST, POS_LEDGER_AUTO_REGISTER.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.seed_demo_data", true)
	v.SetDefault("store.connect_timeout", "5s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "nfc_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.idempotency_ttl", "24h")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "nfc-card-ledger")
	v.SetDefault("ledger.debounce_cooldown", "3s")
	v.SetDefault("ledger.default_opening_balance", 100)
	v.SetDefault("ledger.auto_register", true)
	v.SetDefault("ledger.read_retries", 1)
	v.SetDefault("ledger.operation_timeout", "10s")
	v.SetDefault("ledger.currency_exponent", 2)
	v.SetDefault("terminal.enabled", false)
	v.SetDefault("terminal.device", "")
	v.SetDefault("terminal.mode", "pay")
	v.SetDefault("terminal.shop_id", 0)
	v.SetDefault("terminal.amount", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// POS_DATABASE_HOST -> database.host
	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid store.driver %q: must be postgres or memory", c.Store.Driver)
	}
	if c.Ledger.DefaultOpeningBalance < 0 {
		return fmt.Errorf("ledger.default_opening_balance must not be negative")
	}
	if c.Ledger.ReadRetries < 0 {
		return fmt.Errorf("ledger.read_retries must not be negative")
	}
	if c.Terminal.Enabled {
		if c.Terminal.Mode != "pay" && c.Terminal.Mode != "topup" {
			return fmt.Errorf("invalid terminal.mode %q: must be pay or topup", c.Terminal.Mode)
		}
		if c.Terminal.Amount <= 0 {
			return fmt.Errorf("terminal.amount must be positive")
		}
		if c.Terminal.Mode == "pay" && c.Terminal.ShopID <= 0 {
			return fmt.Errorf("terminal.shop_id is required in pay mode")
		}
	}
	return nil
}
