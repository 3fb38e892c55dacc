package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "host.docker.internal", cfg.Browser.Host)
	assert.Equal(t, 3333, cfg.Browser.Port)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Browser.WaitTimeout)
	assert.Equal(t, 80, cfg.Browser.ScreenshotQuality)
	assert.Equal(t, "mcp_frontend-sniper_", cfg.Tools.Prefix)
	assert.Equal(t, "host.docker.internal:3333", cfg.Browser.Address())
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("ChromeEnvironmentVariables", func(t *testing.T) {
		t.Setenv("CHROME_HOST", "chrome.internal")
		t.Setenv("CHROME_PORT", "9222")
		t.Chdir(t.TempDir())

		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, "chrome.internal", cfg.Browser.Host)
		assert.Equal(t, 9222, cfg.Browser.Port)
	})

	t.Run("PrefixedEnvironmentVariables", func(t *testing.T) {
		t.Setenv("SNIPER_BROWSER_HOST", "10.0.0.5")
		t.Setenv("SNIPER_BROWSER_NAVIGATION_TIMEOUT", "45s")
		t.Chdir(t.TempDir())

		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.5", cfg.Browser.Host)
		assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sniper.yaml")
		content := "browser:\n  host: example.test\n  port: 9333\nlogger:\n  level: debug\n  format: json\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, "example.test", cfg.Browser.Host)
		assert.Equal(t, 9333, cfg.Browser.Port)
		assert.Equal(t, "debug", cfg.Logger.Level)
		assert.Equal(t, "json", cfg.Logger.Format)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"EmptyHost":      func(c *Config) { c.Browser.Host = " " },
		"PortZero":       func(c *Config) { c.Browser.Port = 0 },
		"PortTooHigh":    func(c *Config) { c.Browser.Port = 70000 },
		"NoNavTimeout":   func(c *Config) { c.Browser.NavigationTimeout = 0 },
		"NoWaitTimeout":  func(c *Config) { c.Browser.WaitTimeout = 0 },
		"QualityTooHigh": func(c *Config) { c.Browser.ScreenshotQuality = 101 },
		"NegativeMaxDim": func(c *Config) { c.Browser.ScreenshotMaxDimension = -1 },
		"UnknownFormat":  func(c *Config) { c.Logger.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
