// Package config loads quince configuration.
//
// The resulting Config value is passed explicitly into the engines at
// construction time; nothing here is package-level mutable state. Settings
// come from a TOML file (explicit path, $QUINCE_CONFIG, or the platform user
// config directory) with QUINCE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvConfig is the environment variable naming an alternate config file.
// Separate config files give independent mirrors for different projects.
const EnvConfig = "QUINCE_CONFIG"

// Config holds everything the engines need.
type Config struct {
	// DataDir holds the local database (and log file, unless LogFile is
	// absolute).
	DataDir string `mapstructure:"data_dir"`
	// Username is the remote account (e.g. "acct:name@hypothes.is").
	Username string `mapstructure:"username"`
	// Token is the remote API developer key.
	Token string `mapstructure:"token"`
	// Groups are the remote group IDs to mirror.
	Groups []string `mapstructure:"groups"`
	// PageSize bounds each sync fetch.
	PageSize int `mapstructure:"page_size"`
	// APIURL overrides the remote endpoint, mainly for tests.
	APIURL string `mapstructure:"api_url"`
	// LogFile, when set, receives a rotating copy of sync logs.
	LogFile string `mapstructure:"log_file"`
}

// DBPath returns the location of the local database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "quince.db")
}

// defaultDir returns the platform config directory for quince.
func defaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, "quince"), nil
}

// Path returns the config file that Load would read: the explicit path if
// given, else $QUINCE_CONFIG, else config.toml in the platform directory.
func Path(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, nil
	}
	dir, err := defaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads configuration from the resolved config file and environment.
// A missing file is fine unless its path was given explicitly; defaults and
// QUINCE_* variables still apply.
func Load(explicit string) (*Config, error) {
	path, err := Path(explicit)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("QUINCE")
	v.AutomaticEnv()

	// Unmarshal only sees environment values for keys viper knows about, so
	// every key is bound explicitly; AutomaticEnv alone would drop overrides
	// for keys absent from the file and without a default.
	keys := []string{"data_dir", "username", "token", "groups", "page_size", "api_url", "log_file"}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	dir, err := defaultDir()
	if err != nil {
		return nil, err
	}
	v.SetDefault("data_dir", dir)
	v.SetDefault("page_size", 200)

	if err := v.ReadInConfig(); err != nil {
		if explicit != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteDefault writes a starter config file to w.
func WriteDefault(w io.Writer) error {
	const contents = `# quince configuration
# data_dir defaults to the platform user config directory
# data_dir = ""
username = "acct:<name>@hypothes.is"
token = "<developer API key>"
groups = ["<group id>"]
page_size = 200
# log_file = "quince.log"
`
	if _, err := io.WriteString(w, contents); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

// NewLogger builds the logger used by the sync engine. Log lines go to
// stderr, and additionally to a size-rotated file when LogFile is set.
func (c *Config) NewLogger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if c.LogFile != "" {
		path := c.LogFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.DataDir, path)
		}
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		})
	}
	return log.New(w, prefix, log.LstdFlags)
}
