package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aiknife/internal/logging"
	"aiknife/internal/openrouter"
	"aiknife/internal/selector"
)

const (
	defaultPort           = 8787
	defaultReferer        = "chrome-extension://aiknife/"
	defaultTitle          = "AI Swiss Army Knife Extension"
	defaultRequestTimeout = 60 * time.Second
	defaultHeaderTimeout  = 30 * time.Second
	defaultStreamTimeout  = 5 * time.Minute
	defaultMaxMalformed   = 64
	settingsFileName      = "settings.toml"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Settings   SettingsConfig   `yaml:"settings"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OpenRouterConfig controls the upstream client.
type OpenRouterConfig struct {
	BaseURL string `yaml:"base_url"`
	Referer string `yaml:"referer"`
	Title   string `yaml:"title"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	HeaderTimeout  time.Duration `yaml:"header_timeout"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`

	FallbackModel      string `yaml:"fallback_model"`
	MaxMalformedEvents int    `yaml:"max_malformed_events"`
}

// SettingsConfig locates the user settings file.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the log handler.
type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: defaultPort},
		OpenRouter: OpenRouterConfig{
			BaseURL:            openrouter.DefaultBaseURL,
			Referer:            defaultReferer,
			Title:              defaultTitle,
			RequestTimeout:     defaultRequestTimeout,
			HeaderTimeout:      defaultHeaderTimeout,
			StreamTimeout:      defaultStreamTimeout,
			FallbackModel:      selector.FallbackModel,
			MaxMalformedEvents: defaultMaxMalformed,
		},
		Settings: SettingsConfig{Path: defaultSettingsPath()},
		Log:      LogConfig{Level: "info"},
	}
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".aiknife", settingsFileName)
	}
	return filepath.Join(dir, "aiknife", settingsFileName)
}

// Load reads YAML configuration from disk over the defaults and validates
// the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	cfg.Settings.Path = expandHome(cfg.Settings.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if err := validateBaseURL(c.OpenRouter.BaseURL); err != nil {
		return err
	}

	timeouts := map[string]time.Duration{
		"request_timeout": c.OpenRouter.RequestTimeout,
		"header_timeout":  c.OpenRouter.HeaderTimeout,
		"stream_timeout":  c.OpenRouter.StreamTimeout,
	}
	for name, d := range timeouts {
		if d < 0 {
			return fmt.Errorf("openrouter.%s must not be negative, got %s", name, d)
		}
	}

	if c.OpenRouter.MaxMalformedEvents < 0 {
		return fmt.Errorf("openrouter.max_malformed_events must not be negative, got %d", c.OpenRouter.MaxMalformedEvents)
	}
	if strings.TrimSpace(c.OpenRouter.FallbackModel) == "" {
		return fmt.Errorf("openrouter.fallback_model must be provided")
	}

	if strings.TrimSpace(c.Settings.Path) == "" {
		return fmt.Errorf("settings.path must be provided")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func validateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("openrouter.base_url must be provided")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("openrouter.base_url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("openrouter.base_url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("openrouter.base_url %q must include a host", raw)
	}
	return nil
}

// ClientOptions converts the upstream section to client options. The key
// comes from the settings store.
func (c Config) ClientOptions() openrouter.Options {
	return openrouter.Options{
		BaseURL:            c.OpenRouter.BaseURL,
		Referer:            c.OpenRouter.Referer,
		Title:              c.OpenRouter.Title,
		HTTPClient:         openrouter.NewHTTPClientWithHeaderTimeout(c.OpenRouter.HeaderTimeout),
		RequestTimeout:     c.OpenRouter.RequestTimeout,
		StreamTimeout:      c.OpenRouter.StreamTimeout,
		MaxMalformedEvents: c.OpenRouter.MaxMalformedEvents,
	}
}

// Address is the listen address of the service.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
