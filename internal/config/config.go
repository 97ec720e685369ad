// Package config loads taskboard settings from config.yaml, TASKBOARD_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TASKBOARD"

type Config struct {
	Server ServerConfig `mapstructure:"server" json:"server"`
	Client ClientConfig `mapstructure:"client" json:"client"`
	Log    LogConfig    `mapstructure:"log" json:"log"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr" json:"addr"`
	DBPath string `mapstructure:"db_path" json:"db_path"`
	// DedupWindow is how long a client_request_id keeps deduplicating creates.
	DedupWindow time.Duration `mapstructure:"dedup_window" json:"dedup_window"`
}

type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url" json:"base_url"`
	MaxRetries     int           `mapstructure:"max_retries" json:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay" json:"base_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" json:"attempt_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	Development bool   `mapstructure:"development" json:"development"`
}

// Dir returns the taskboard config directory.
func Dir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.taskboard).
	if v := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".taskboard"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("server.addr", "127.0.0.1:7420")
	v.SetDefault("server.db_path", filepath.Join(dir, "taskboard.sqlite"))
	v.SetDefault("server.dedup_window", 24*time.Hour)
	v.SetDefault("client.base_url", "http://127.0.0.1:7420")
	v.SetDefault("client.max_retries", 4)
	v.SetDefault("client.base_delay", 2*time.Second)
	v.SetDefault("client.attempt_timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the effective configuration.
//
// path may be empty to use the default location; a missing file is not an error.
// bindings maps config keys (e.g. "server.addr") to flag names in flags; only flags
// the user actually set override lower layers.
func Load(path string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	setDefaults(v, dir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if flags != nil {
		for key, name := range bindings {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("config: server.addr is empty")
	}
	if strings.TrimSpace(c.Server.DBPath) == "" {
		return errors.New("config: server.db_path is empty")
	}
	if c.Server.DedupWindow <= 0 {
		return errors.New("config: server.dedup_window must be positive")
	}
	if strings.TrimSpace(c.Client.BaseURL) == "" {
		return errors.New("config: client.base_url is empty")
	}
	if c.Client.MaxRetries < 1 {
		return fmt.Errorf("config: client.max_retries must be at least 1, got %d", c.Client.MaxRetries)
	}
	if c.Client.BaseDelay <= 0 {
		return errors.New("config: client.base_delay must be positive")
	}
	if c.Client.AttemptTimeout <= 0 {
		return errors.New("config: client.attempt_timeout must be positive")
	}
	return nil
}
