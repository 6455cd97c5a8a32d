package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"github.com/mmcdole/offlined/internal/domain"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds listener and origin configuration
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`       // Proxy listener the browser talks to
	AdminListen string   `mapstructure:"admin_listen"` // Control endpoints and metrics
	Origin      string   `mapstructure:"origin"`       // Web application origin, e.g. http://localhost:3000
	MediaHosts  []string `mapstructure:"media_hosts"`  // Third-party hosts cached cache-first
}

// CacheConfig holds cache store configuration
type CacheConfig struct {
	Dir         string   `mapstructure:"dir"`     // Empty means memory-only
	Prefix      string   `mapstructure:"prefix"`  // Store name prefix
	Version     string   `mapstructure:"version"` // Rotate on each deploy
	Shell       []string `mapstructure:"shell"`   // Paths pre-cached on install
	APIPrefix   string   `mapstructure:"api_prefix"`
	AssetPrefix string   `mapstructure:"asset_prefix"`
	OfflinePage string   `mapstructure:"offline_page"`
}

// UpstreamConfig holds outbound client configuration
type UpstreamConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:      "127.0.0.1:8080",
			AdminListen: "127.0.0.1:8081",
			Origin:      "http://localhost:3000",
			MediaHosts:  []string{"youtube.com", "ytimg.com"},
		},
		Cache: CacheConfig{
			Dir:         defaultCachePath(),
			Prefix:      "mindfulreplay",
			Version:     "v1",
			Shell:       []string{"/", "/memos", "/tasks", "/offline", "/manifest.json"},
			APIPrefix:   "/api/",
			AssetPrefix: "/_next/static/",
			OfflinePage: "/offline",
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "offlined", "offlined.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "offlined", "offlined.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "offlined")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "offlined")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "offlined", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "offlined", "cache")
	}
}

// Loader reads configuration from file and environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty configFile searches the default
// config directory and the working directory for config.yaml.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. OFFLINED_CACHE_VERSION
	v.SetEnvPrefix("OFFLINED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

// setDefaults registers every key so environment overrides apply on Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.admin_listen", cfg.Server.AdminListen)
	v.SetDefault("server.origin", cfg.Server.Origin)
	v.SetDefault("server.media_hosts", cfg.Server.MediaHosts)

	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.prefix", cfg.Cache.Prefix)
	v.SetDefault("cache.version", cfg.Cache.Version)
	v.SetDefault("cache.shell", cfg.Cache.Shell)
	v.SetDefault("cache.api_prefix", cfg.Cache.APIPrefix)
	v.SetDefault("cache.asset_prefix", cfg.Cache.AssetPrefix)
	v.SetDefault("cache.offline_page", cfg.Cache.OfflinePage)

	v.SetDefault("upstream.timeout", cfg.Upstream.Timeout)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// Load reads and validates the configuration
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFile returns the file the configuration was read from, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the new configuration whenever the config file
// changes. Invalid edits are reported through onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfigFile returns the default config file location
func DefaultConfigFile() string {
	return filepath.Join(defaultConfigPath(), "config.yaml")
}

func (c *Config) expandPaths() error {
	var err error
	if c.Cache.Dir, err = homedir.Expand(c.Cache.Dir); err != nil {
		return fmt.Errorf("invalid cache dir: %w", err)
	}
	if c.Logging.File, err = homedir.Expand(c.Logging.File); err != nil {
		return fmt.Errorf("invalid log file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the worker cannot run with
func (c *Config) Validate() error {
	if _, err := c.OriginURL(); err != nil {
		return err
	}
	if _, err := c.StoreNames(); err != nil {
		return err
	}
	for name, prefix := range map[string]string{
		"cache.api_prefix":   c.Cache.APIPrefix,
		"cache.asset_prefix": c.Cache.AssetPrefix,
		"cache.offline_page": c.Cache.OfflinePage,
	} {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("%s must start with '/': %q", name, prefix)
		}
	}
	for _, path := range c.Cache.Shell {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("cache.shell entries must start with '/': %q", path)
		}
	}
	return nil
}

// OriginURL parses the configured origin
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Server.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid server.origin: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("server.origin must be an absolute http(s) URL: %q", c.Server.Origin)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// StoreNames returns the validated store names for the configured version
func (c *Config) StoreNames() (domain.StoreNames, error) {
	return domain.NewStoreNames(c.Cache.Prefix, c.Cache.Version)
}
