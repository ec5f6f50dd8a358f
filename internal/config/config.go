// Package config loads moussadar settings from defaults, an optional config
// file, a .env file and MOUSSADAR_* environment variables.
//
// Precedence, lowest first:
//
//	defaults < config file < .env / environment < bound command flags
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
)

// EnvPrefix is prepended to every environment variable viper looks up.
const EnvPrefix = "MOUSSADAR"

// Config is the fully resolved configuration for the server and the client.
type Config struct {
	Port        int             `mapstructure:"port"`
	Environment string          `mapstructure:"environment"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Seed        SeedConfig      `mapstructure:"seed"`
	Log         LogConfig       `mapstructure:"log"`
	CORS        CORSConfig      `mapstructure:"cors"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Chat        ChatConfig      `mapstructure:"chat"`
	Client      ClientConfig    `mapstructure:"client"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SeedConfig controls where reference data comes from. An empty Dir means
// the embedded defaults.
type SeedConfig struct {
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig configures the rotating log file. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// RateLimitConfig holds per-IP request budgets for one window.
type RateLimitConfig struct {
	APIPerWindow int           `mapstructure:"api_per_window"`
	AIPerWindow  int           `mapstructure:"ai_per_window"`
	Window       time.Duration `mapstructure:"window"`
}

type ChatConfig struct {
	Delay     time.Duration   `mapstructure:"delay"`
	RulesFile string          `mapstructure:"rules_file"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// AnthropicConfig enables the model-backed fallback responder when APIKey is set.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

// ClientConfig drives the offline client commands.
type ClientConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	QueueFile    string        `mapstructure:"queue_file"`
	StateFile    string        `mapstructure:"state_file"`
	UserID       string        `mapstructure:"user_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	AckMode      bool          `mapstructure:"ack_mode"`
	SingleFlight bool          `mapstructure:"single_flight"`
}

var (
	developmentOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	productionOrigins  = []string{"https://moussadar.com", "https://www.moussadar.com"}
)

// SetDefaults registers every known key so env lookups and Unmarshal see them.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	clientDir := filepath.Join(home, ".moussadar")

	v.SetDefault("port", 3001)
	v.SetDefault("environment", "development")
	v.SetDefault("database.path", filepath.Join("data", "moussadar.db"))
	v.SetDefault("seed.dir", "")
	v.SetDefault("seed.watch", false)
	v.SetDefault("seed.debounce", 250*time.Millisecond)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("cors.origins", []string{})
	v.SetDefault("ratelimit.api_per_window", 100)
	v.SetDefault("ratelimit.ai_per_window", 20)
	v.SetDefault("ratelimit.window", 15*time.Minute)
	v.SetDefault("chat.delay", time.Second)
	v.SetDefault("chat.rules_file", "")
	v.SetDefault("chat.anthropic.api_key", "")
	v.SetDefault("chat.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("chat.anthropic.max_tokens", 512)
	v.SetDefault("client.server_url", "http://localhost:3001")
	v.SetDefault("client.queue_file", filepath.Join(clientDir, "queue.json"))
	v.SetDefault("client.state_file", filepath.Join(clientDir, "state.json"))
	v.SetDefault("client.user_id", "")
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("client.poll_interval", 5*time.Second)
	v.SetDefault("client.ack_mode", false)
	v.SetDefault("client.single_flight", false)
}

// New returns a viper instance with defaults, environment binding and, when
// configFile is non-empty, that file as the config source. Without an explicit
// file, moussadar.{yaml,toml,json} is searched in . and $HOME/.moussadar.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare names used by the deployment scripts.
	_ = v.BindEnv("port", EnvPrefix+"_PORT", "PORT")
	_ = v.BindEnv("environment", EnvPrefix+"_ENVIRONMENT", "APP_ENV", "NODE_ENV")
	_ = v.BindEnv("chat.anthropic.api_key", EnvPrefix+"_CHAT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("moussadar")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".moussadar"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load resolves v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.CORS.Origins) == 0 {
		if cfg.IsProduction() {
			cfg.CORS.Origins = productionOrigins
		} else {
			cfg.CORS.Origins = developmentOrigins
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path cannot be empty")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive, got %v", c.RateLimit.Window)
	}
	if c.RateLimit.APIPerWindow <= 0 || c.RateLimit.AIPerWindow <= 0 {
		return errors.New("rate limits must be positive")
	}
	if c.Chat.Delay < 0 {
		return fmt.Errorf("chat.delay cannot be negative, got %v", c.Chat.Delay)
	}
	return nil
}

// IsProduction reports whether error responses must omit stack traces.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
