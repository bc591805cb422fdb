package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Queue       QueueConfig       `toml:"queue"`
	LLM         LLMConfig         `toml:"llm"`
	HTTP        HTTPConfig        `toml:"http"`
	Curation    CurationConfig    `toml:"curation"`
	Cache       CacheConfig       `toml:"cache"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// Duration wraps [time.Duration] so TOML values like "30s" decode.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Brave   BraveConfig   `toml:"brave"`
	OpenAI  OpenAIConfig  `toml:"openai"`
}

// SpotifyConfig contains Spotify client-credential settings.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	BaseURL      string `toml:"base_url"`
	TokenURL     string `toml:"token_url"`
}

// BraveConfig contains Brave web search settings.
type BraveConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// OpenAIConfig contains settings for any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// DatabaseConfig contains database connection settings.
//
// Driver is "sqlite" (uses Path) or "postgres" (uses URL).
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// QueueConfig contains NATS JetStream settings for curation requests.
type QueueConfig struct {
	URL             string   `toml:"url"`
	Stream          string   `toml:"stream"`
	Subject         string   `toml:"subject"`
	Durable         string   `toml:"durable"`
	Concurrency     int      `toml:"concurrency"`
	MaxDeliveries   int      `toml:"max_deliveries"`
	RequeueDelay    Duration `toml:"requeue_delay"`
	AckWait         Duration `toml:"ack_wait"`
	MessageTimeout  Duration `toml:"message_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// LLMConfig selects models for query generation, classification and embeddings.
type LLMConfig struct {
	Model               string  `toml:"model"`
	EmbeddingModel      string  `toml:"embedding_model"`
	EmbeddingDimensions int     `toml:"embedding_dimensions"`
	Temperature         float32 `toml:"temperature"`
	ResultRetries       int     `toml:"result_retries"`
}

// HTTPConfig controls the resilient client used for outbound search calls.
type HTTPConfig struct {
	MaxRetries    int      `toml:"max_retries"`
	BaseBackoff   Duration `toml:"base_backoff"`
	Timeout       Duration `toml:"timeout"`
	SearchRate    float64  `toml:"search_rate"`
	BreakerTrips  uint32   `toml:"breaker_trips"`
	BreakerWindow Duration `toml:"breaker_window"`
}

// CurationConfig holds the tunables of the reuse decision and discovery pipeline.
type CurationConfig struct {
	MaxRetries          int     `toml:"max_retries"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	HistoryHours        int     `toml:"history_hours"`
	MinPoolSize         int     `toml:"min_pool_size"`
	MaxReuseRatio       float64 `toml:"max_reuse_ratio"`
	MatchThreshold      float64 `toml:"match_threshold"`
	SearchLimit         int     `toml:"search_limit"`
	VideoResults        int     `toml:"video_results"`
	Timezone            string  `toml:"timezone"`
}

// CacheConfig configures the optional Redis cache for query embeddings.
type CacheConfig struct {
	RedisURL string   `toml:"redis_url"`
	TTL      Duration `toml:"ttl"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	RefillThreshold int    `toml:"refill_threshold"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config,
// and secrets can be overridden from the environment (see [Config.ApplyEnv]).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv(os.LookupEnv)
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides credentials and connection URLs with environment values when set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"SPOTIFY_CLIENT_ID", &c.Credentials.Spotify.ClientID},
		{"SPOTIFY_CLIENT_SECRET", &c.Credentials.Spotify.ClientSecret},
		{"BRAVE_SEARCH_TOKEN", &c.Credentials.Brave.Token},
		{"OPENAI_API_KEY", &c.Credentials.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &c.Credentials.OpenAI.BaseURL},
		{"DATABASE_URL", &c.Database.URL},
		{"NATS_URL", &c.Queue.URL},
		{"REDIS_URL", &c.Cache.RedisURL},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.dst = v
		}
	}
}

// Location resolves the curation timezone, falling back to UTC.
func (c CurationConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the settings required by the worker commands.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("%w: database.url is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("%w: queue.concurrency must be positive", ErrInvalidConfig)
	}
	if c.Curation.MaxRetries <= 0 {
		return fmt.Errorf("%w: curation.max_retries must be positive", ErrInvalidConfig)
	}
	if c.Curation.MatchThreshold <= 0 || c.Curation.MatchThreshold >= 1 {
		return fmt.Errorf("%w: curation.match_threshold must be in (0, 1)", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
