package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	API       APIConfig       `mapstructure:"api"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Drafts    DraftsConfig    `mapstructure:"drafts"`
	Cards     CardsConfig     `mapstructure:"cards"`
	Reminders RemindersConfig `mapstructure:"reminders"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// APIConfig holds the remote API connection settings
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StreamConfig holds event-stream ingestion settings
type StreamConfig struct {
	// ReadTimeout bounds a single chunk read. Zero disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	ChunkSize   int           `mapstructure:"chunk_size"`
}

// DraftsConfig holds draft persistence settings
type DraftsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Namespace  string        `mapstructure:"namespace"`
	Debounce   time.Duration `mapstructure:"debounce"`
	Database   string        `mapstructure:"database"`
	QuotaBytes int64         `mapstructure:"quota_bytes"`
	WatchDir   string        `mapstructure:"watch_dir"`
}

// CardsConfig holds card manager settings
type CardsConfig struct {
	Index CardsIndexConfig `mapstructure:"index"`
}

// CardsIndexConfig holds the semantic card index settings
type CardsIndexConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	PersistenceDir string         `mapstructure:"persistence_dir"`
	Embedder       EmbedderConfig `mapstructure:"embedder"`
}

// EmbedderConfig selects the embedding provider for the card index
type EmbedderConfig struct {
	Provider   string `mapstructure:"provider"` // hash, ollama
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// RemindersConfig holds reflection reminder settings
type RemindersConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.chatnote")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, ".chatnote"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix("CHATNOTE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && !isMissingConfig(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := normalize(loaded); err != nil {
		return nil, err
	}

	cfg = loaded
	return cfg, nil
}

func isMissingConfig(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.log_file", "./.chatnote/system.log")
	v.SetDefault("logging.preserve", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("api.base_url", "http://localhost:3000/api")
	v.SetDefault("api.token", "")
	v.SetDefault("api.model", "deepseek-chat")
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("stream.read_timeout", "60s")
	v.SetDefault("stream.chunk_size", 4096)

	v.SetDefault("drafts.enabled", true)
	v.SetDefault("drafts.namespace", "chat")
	v.SetDefault("drafts.debounce", "3s")
	v.SetDefault("drafts.database", "./.chatnote/drafts.db")
	v.SetDefault("drafts.quota_bytes", 5*1024*1024)
	v.SetDefault("drafts.watch_dir", "./.chatnote/drafts.bus")

	v.SetDefault("cards.index.enabled", true)
	v.SetDefault("cards.index.persistence_dir", "")
	v.SetDefault("cards.index.embedder.provider", "hash")
	v.SetDefault("cards.index.embedder.model", "nomic-embed-text")
	v.SetDefault("cards.index.embedder.base_url", "http://localhost:11434")
	v.SetDefault("cards.index.embedder.dimensions", 256)

	v.SetDefault("reminders.enabled", false)
}

// normalize fills zero values and rejects settings that cannot work
func normalize(c *Config) error {
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("invalid api.timeout: %s", c.API.Timeout)
	}
	if c.Stream.ReadTimeout < 0 {
		return fmt.Errorf("invalid stream.read_timeout: %s", c.Stream.ReadTimeout)
	}
	if c.Stream.ChunkSize <= 0 {
		c.Stream.ChunkSize = 4096
	}
	if c.Drafts.Debounce <= 0 {
		c.Drafts.Debounce = 3 * time.Second
	}
	if c.Drafts.Namespace == "" {
		c.Drafts.Namespace = "chat"
	}
	if c.Drafts.QuotaBytes < 0 {
		return fmt.Errorf("invalid drafts.quota_bytes: %d", c.Drafts.QuotaBytes)
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// WriteDefaults creates a settings file holding the default values.
// An existing file is left untouched.
func WriteDefaults(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write default configuration: %w", err)
	}
	return nil
}
