// Package config loads server configuration from an optional YAML file and
// SETTLE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mmynk/settle/internal/chain"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	// PublicURL is the base payment links are built against.
	PublicURL string `mapstructure:"public_url"`
}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ChainConfig struct {
	ChainID             string        `mapstructure:"chain_id"`
	Network             string        `mapstructure:"network"`
	TokenSymbol         string        `mapstructure:"token_symbol"`
	TokenAddress        string        `mapstructure:"token_address"`
	TokenDecimals       int32         `mapstructure:"token_decimals"`
	ExplorerURL         string        `mapstructure:"explorer_url"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	// ConfirmDelay is how long the simulated executor takes to mine a transfer.
	ConfirmDelay time.Duration `mapstructure:"confirm_delay"`
	// WalletKey is the hex private key of the server-side simulated wallet.
	// Empty disables it.
	WalletKey string `mapstructure:"wallet_key"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
	// ChallengeTTL bounds how long a sign-in challenge can be answered.
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
}

type NotifyConfig struct {
	RedeliveryDelay time.Duration `mapstructure:"redelivery_delay"`
	Channel         string        `mapstructure:"channel"`
}

type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. path names a YAML file; when empty, config.yaml
// is looked up in ./configs and the working directory and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set environment variable prefix and replacer
	v.SetEnvPrefix("SETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must not be empty")
	}
	if c.Chain.WalletKey != "" {
		if _, err := chain.ParsePrivateKey(c.Chain.WalletKey); err != nil {
			return fmt.Errorf("chain.wallet_key: %w", err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_path", "../frontend/static")
	v.SetDefault("server.public_url", "http://localhost:8080")

	// Storage defaults
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite.path", "./data/settle.db")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "")

	// Chain defaults: USDC on Base Sepolia
	v.SetDefault("chain.chain_id", "0x14a34")
	v.SetDefault("chain.network", "Base Sepolia")
	v.SetDefault("chain.token_symbol", "USDC")
	v.SetDefault("chain.token_address", "0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	v.SetDefault("chain.token_decimals", 6)
	v.SetDefault("chain.explorer_url", "https://sepolia.basescan.org")
	v.SetDefault("chain.confirmation_timeout", 60*time.Second)
	v.SetDefault("chain.confirm_delay", 2*time.Second)
	v.SetDefault("chain.wallet_key", "")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.token_duration", 24*time.Hour)
	v.SetDefault("auth.challenge_ttl", 5*time.Minute)

	// Notify defaults
	v.SetDefault("notify.redelivery_delay", time.Second)
	v.SetDefault("notify.channel", "settle:payments:completed")

	// Watch defaults
	v.SetDefault("watch.interval", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
}
