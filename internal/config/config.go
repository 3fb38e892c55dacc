// Package config holds the bridge configuration, loaded through viper from an
// optional config file and the environment.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every structured environment variable,
// e.g. SNIPER_BROWSER_PORT.
const EnvPrefix = "SNIPER"

// Config is the root configuration structure.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Browser BrowserConfig `mapstructure:"browser"`
	Tools   ToolsConfig   `mapstructure:"tools"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level" yaml:"level"`
	Format      string `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// BrowserConfig describes where the remote browser lives and how long
// individual operations may take.
type BrowserConfig struct {
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	DiscoveryTimeout       time.Duration `mapstructure:"discovery_timeout"`
	NavigationTimeout      time.Duration `mapstructure:"navigation_timeout"`
	ActionTimeout          time.Duration `mapstructure:"action_timeout"`
	WaitTimeout            time.Duration `mapstructure:"wait_timeout"`
	ScreenshotQuality      int           `mapstructure:"screenshot_quality"`
	ScreenshotMaxDimension int           `mapstructure:"screenshot_max_dimension"`
}

// Address returns host:port of the debugging endpoint.
func (b BrowserConfig) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// ToolsConfig controls tool name handling.
type ToolsConfig struct {
	// Prefix is the literal prefix some clients put in front of tool names.
	Prefix string `mapstructure:"prefix"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "frontend-sniper")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.host", "host.docker.internal")
	v.SetDefault("browser.port", 3333)
	v.SetDefault("browser.discovery_timeout", 10*time.Second)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.action_timeout", 10*time.Second)
	v.SetDefault("browser.wait_timeout", 5*time.Second)
	v.SetDefault("browser.screenshot_quality", 80)
	v.SetDefault("browser.screenshot_max_dimension", 0)

	v.SetDefault("tools.prefix", "mcp_frontend-sniper_")
}

// BindEnv wires the environment into v. CHROME_HOST and CHROME_PORT are
// honoured alongside the prefixed names so existing container setups keep
// working.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("browser.host", EnvPrefix+"_BROWSER_HOST", "CHROME_HOST")
	_ = v.BindEnv("browser.port", EnvPrefix+"_BROWSER_PORT", "CHROME_PORT")
}

// Load reads the optional config file at path (or ./config.yaml when path is
// empty) and returns the validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Browser.Host) == "" {
		return fmt.Errorf("browser.host must not be empty")
	}
	if c.Browser.Port <= 0 || c.Browser.Port > 65535 {
		return fmt.Errorf("browser.port %d is out of range", c.Browser.Port)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be positive")
	}
	if c.Browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be positive")
	}
	if c.Browser.WaitTimeout <= 0 {
		return fmt.Errorf("browser.wait_timeout must be positive")
	}
	if c.Browser.DiscoveryTimeout <= 0 {
		return fmt.Errorf("browser.discovery_timeout must be positive")
	}
	if c.Browser.ScreenshotQuality < 1 || c.Browser.ScreenshotQuality > 100 {
		return fmt.Errorf("browser.screenshot_quality must be between 1 and 100, got %d", c.Browser.ScreenshotQuality)
	}
	if c.Browser.ScreenshotMaxDimension < 0 {
		return fmt.Errorf("browser.screenshot_max_dimension must not be negative")
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	return nil
}
