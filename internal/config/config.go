package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Lobby       LobbyConfig       `mapstructure:"lobby"`
	Events      EventsConfig      `mapstructure:"events"`
	Development DevelopmentConfig `mapstructure:"development"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AuthSecret enables bearer tokens on write endpoints when set.
	AuthSecret string        `mapstructure:"auth_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type LedgerConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	GomokuAddress string `mapstructure:"gomoku_address"`
	VaultAddress  string `mapstructure:"vault_address"`
	PrivateKey    string `mapstructure:"private_key"`
	// ChainID of 0 asks the node.
	ChainID int64 `mapstructure:"chain_id"`
}

type LobbyConfig struct {
	WindowSize        int           `mapstructure:"window_size"`
	LookupConcurrency int           `mapstructure:"lookup_concurrency"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout"`
	WatchdogInterval  time.Duration `mapstructure:"watchdog_interval"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
}

type EventsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type DevelopmentConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_secret", "")
	v.SetDefault("server.token_ttl", 12*time.Hour)
	v.SetDefault("ledger.rpc_url", "ws://localhost:8546")
	v.SetDefault("ledger.gomoku_address", "")
	v.SetDefault("ledger.vault_address", "")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.chain_id", 0)
	v.SetDefault("lobby.window_size", 80)
	v.SetDefault("lobby.lookup_concurrency", 0)
	v.SetDefault("lobby.turn_timeout", 90*time.Second)
	v.SetDefault("lobby.watchdog_interval", 1500*time.Millisecond)
	v.SetDefault("lobby.refresh_interval", 15*time.Second)
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.reconnect_delay", time.Second)
	v.SetDefault("development.debug", false)
	v.SetDefault("development.log_level", "info")
}

// Load reads config.yaml from the working directory or ./config, overlays
// GOMOKU_* environment variables and fills in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variables
	v.SetEnvPrefix("GOMOKU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No file: defaults and environment only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "localhost",
			Port:     8080,
			TokenTTL: 12 * time.Hour,
		},
		Ledger: LedgerConfig{
			RPCURL: "ws://localhost:8546",
		},
		Lobby: LobbyConfig{
			WindowSize:       80,
			TurnTimeout:      90 * time.Second,
			WatchdogInterval: 1500 * time.Millisecond,
			RefreshInterval:  15 * time.Second,
		},
		Events: EventsConfig{
			Enabled:        true,
			ReconnectDelay: time.Second,
		},
		Development: DevelopmentConfig{
			LogLevel: "info",
		},
	}
}

// Validate checks the values the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	if c.Ledger.GomokuAddress == "" {
		return fmt.Errorf("ledger.gomoku_address is required")
	}
	if c.Ledger.VaultAddress == "" {
		return fmt.Errorf("ledger.vault_address is required")
	}
	if c.Ledger.PrivateKey == "" {
		return fmt.Errorf("ledger.private_key is required")
	}
	if c.Lobby.WindowSize <= 0 {
		return fmt.Errorf("lobby.window_size must be positive, got %d", c.Lobby.WindowSize)
	}
	if c.Lobby.LookupConcurrency < 0 {
		return fmt.Errorf("lobby.lookup_concurrency must not be negative")
	}
	if c.Lobby.TurnTimeout <= 0 {
		return fmt.Errorf("lobby.turn_timeout must be positive")
	}
	if c.Lobby.WatchdogInterval <= 0 {
		return fmt.Errorf("lobby.watchdog_interval must be positive")
	}
	if c.Lobby.RefreshInterval < 0 {
		return fmt.Errorf("lobby.refresh_interval must not be negative")
	}
	return nil
}
