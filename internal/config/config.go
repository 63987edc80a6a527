package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config and data directories.
const AppName = "promptly"

type Config struct {
	APIKeys       map[string]string `mapstructure:"api_keys" yaml:"api_keys"`
	AppSettings   AppSettings       `mapstructure:"app_settings" yaml:"app_settings"`
	History       HistoryConfig     `mapstructure:"history" yaml:"history"`
	ProbeCacheTTL time.Duration     `mapstructure:"probe_cache_ttl" yaml:"probe_cache_ttl"`
	Theme         ThemeConfig       `mapstructure:"theme" yaml:"theme,omitempty"`
}

type AppSettings struct {
	UseStreaming      bool          `mapstructure:"use_streaming" yaml:"use_streaming"`
	StreamMinChars    int           `mapstructure:"stream_min_chars" yaml:"stream_min_chars"`
	StreamMaxInterval time.Duration `mapstructure:"stream_max_interval" yaml:"stream_max_interval"`
}

type HistoryConfig struct {
	// Backend is json, sqlite or memory.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path overrides the default file location under the data directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// ThemeConfig overrides TUI colors. Values are lipgloss colors: ANSI
// numbers ("9") or hex ("#ff0000"). Empty fields keep the default.
type ThemeConfig struct {
	Primary   string `mapstructure:"primary" yaml:"primary,omitempty"`
	Muted     string `mapstructure:"muted" yaml:"muted,omitempty"`
	Success   string `mapstructure:"success" yaml:"success,omitempty"`
	Error     string `mapstructure:"error" yaml:"error,omitempty"`
	UserMsgBg string `mapstructure:"user_msg_bg" yaml:"user_msg_bg,omitempty"`
}

// EnvFallbacks maps each credential key to the environment variable consulted
// when the config file leaves it empty.
var EnvFallbacks = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"ollama":    "OLLAMA_PORT",
}

// CredentialKeys lists the known credential keys in display order.
var CredentialKeys = []string{"openai", "anthropic", "gemini", "mistral", "deepseek", "ollama"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_settings.use_streaming", false)
	v.SetDefault("app_settings.stream_min_chars", 5)
	v.SetDefault("app_settings.stream_max_interval", "100ms")
	v.SetDefault("history.backend", "json")
	v.SetDefault("history.path", "")
	v.SetDefault("probe_cache_ttl", "5m")
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error. Credentials are resolved and fall
// back to the environment, after loading any .env files.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg, err := LoadUnresolved(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.resolveCredentials(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnresolved reads the config with defaults applied but leaves api_keys
// exactly as written, which is what editing and saving it back needs.
func LoadUnresolved(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := GetConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = make(map[string]string)
	}
	return &cfg, nil
}

// loadDotEnv loads .env from the working directory and the config
// directory. Variables already set in the environment win.
func loadDotEnv() {
	files := []string{".env"}
	if dir, err := GetConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

func (c *Config) resolveCredentials() error {
	if c.APIKeys == nil {
		c.APIKeys = make(map[string]string)
	}
	for key, raw := range c.APIKeys {
		resolved, err := ResolveValue(raw)
		if err != nil {
			return fmt.Errorf("api_keys.%s: %w", key, err)
		}
		c.APIKeys[key] = resolved
	}
	for key, env := range EnvFallbacks {
		if strings.TrimSpace(c.APIKeys[key]) == "" {
			c.APIKeys[key] = os.Getenv(env)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail later and far away.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case "json", "sqlite", "memory":
	default:
		return fmt.Errorf("history.backend: unknown backend %q (want json, sqlite or memory)", c.History.Backend)
	}
	if c.AppSettings.StreamMinChars <= 0 {
		return fmt.Errorf("app_settings.stream_min_chars must be positive, got %d", c.AppSettings.StreamMinChars)
	}
	if c.AppSettings.StreamMaxInterval <= 0 {
		return fmt.Errorf("app_settings.stream_max_interval must be positive, got %s", c.AppSettings.StreamMaxInterval)
	}
	if c.ProbeCacheTTL < 0 {
		return fmt.Errorf("probe_cache_ttl must not be negative, got %s", c.ProbeCacheTTL)
	}
	return nil
}

// Credentials returns a copy of the resolved credential table.
func (c *Config) Credentials() map[string]string {
	out := make(map[string]string, len(c.APIKeys))
	for k, v := range c.APIKeys {
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// GetConfigDir returns $XDG_CONFIG_HOME/promptly, falling back to the
// platform config directory.
func GetConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// GetDataDir returns $XDG_DATA_HOME/promptly, defaulting to
// ~/.local/share/promptly.
func GetDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", AppName), nil
}

// GetCacheDir returns $XDG_CACHE_HOME/promptly, falling back to the
// platform cache directory.
func GetCacheDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes cfg as YAML to path, or the default location when path is
// empty. The file is readable only by the owner since it holds API keys.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}
