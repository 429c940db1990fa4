package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envKeyReplacer maps nested keys like server.port to PLANNERD_SERVER_PORT.
var envKeyReplacer = strings.NewReplacer(".", "_")

// ServerConfig holds HTTP server tuning.
type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutDownTimeout    time.Duration
	CORSAllowedOrigins string
}

// DataConfig holds storage layout and persistence timing.
type DataConfig struct {
	StateDir         string        // directory for the cache database and metadata file
	DefaultFileName  string        // suggested name for a newly chosen save target
	DebounceInterval time.Duration // auto-save quiet period
	WatchDebounce    time.Duration // fsnotify event coalescing window
}

// MiscConfig holds everything else.
type MiscConfig struct {
	GinMode        string
	LogLevel       string
	FileAccessMode string // "native", "manual" or "auto"
}

// Config is the full application configuration.
type Config struct {
	Server ServerConfig
	Data   DataConfig
	Misc   MiscConfig
}

// LoadConfig reads config.yaml from the given path (or the working directory
// when empty), applies defaults and PLANNERD_* env overrides, and validates.
func LoadConfig(confPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if confPath == "" {
		confPath = "."
	}
	v.AddConfigPath(confPath)

	// Defaults to allow running without a config file
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.cors_allowed_origins", "*")
	v.SetDefault("data.state_dir", "./data")
	v.SetDefault("data.default_file_name", "conquer-session.json")
	v.SetDefault("data.debounce_interval", "1s")
	v.SetDefault("data.watch_debounce", "200ms")
	v.SetDefault("misc.gin_mode", "release")
	v.SetDefault("misc.log_level", "info")
	v.SetDefault("misc.file_access_mode", "auto")

	// Environment variables like PLANNERD_SERVER_PORT override everything
	v.AutomaticEnv()
	v.SetEnvPrefix("PLANNERD")
	v.SetEnvKeyReplacer(envKeyReplacer)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               v.GetInt("server.port"),
			ReadTimeout:        v.GetDuration("server.read_timeout"),
			WriteTimeout:       v.GetDuration("server.write_timeout"),
			IdleTimeout:        v.GetDuration("server.idle_timeout"),
			ShutDownTimeout:    v.GetDuration("server.shutdown_timeout"),
			CORSAllowedOrigins: v.GetString("server.cors_allowed_origins"),
		},
		Data: DataConfig{
			StateDir:         v.GetString("data.state_dir"),
			DefaultFileName:  v.GetString("data.default_file_name"),
			DebounceInterval: v.GetDuration("data.debounce_interval"),
			WatchDebounce:    v.GetDuration("data.watch_debounce"),
		},
		Misc: MiscConfig{
			GinMode:        v.GetString("misc.gin_mode"),
			LogLevel:       v.GetString("misc.log_level"),
			FileAccessMode: v.GetString("misc.file_access_mode"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.ShutDownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Data.StateDir == "" {
		return errors.New("data state_dir is required")
	}
	if c.Data.DefaultFileName == "" {
		return errors.New("data default_file_name is required")
	}
	if c.Data.DebounceInterval <= 0 {
		return errors.New("debounce interval must be positive")
	}
	if c.Data.WatchDebounce <= 0 {
		return errors.New("watch debounce must be positive")
	}
	switch c.Misc.FileAccessMode {
	case "native", "manual", "auto":
	default:
		return fmt.Errorf("invalid file_access_mode: %q", c.Misc.FileAccessMode)
	}
	return nil
}
