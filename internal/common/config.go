package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Logging     LoggingConfig    `toml:"logging"`
	Generation  GenerationConfig `toml:"generation"`
	OpenRouter  OpenRouterConfig `toml:"openrouter"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	Queue       QueueConfig      `toml:"queue"`
	Artifacts   ArtifactsConfig  `toml:"artifacts"`
	Storage     StorageConfig    `toml:"storage"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Ingestion   IngestionConfig  `toml:"ingestion"`
	Project     ProjectConfig    `toml:"project"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                             // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
}

// LLMProvider represents the generation backend
type LLMProvider string

const (
	// LLMProviderOpenRouter uses the OpenAI-compatible OpenRouter API
	LLMProviderOpenRouter LLMProvider = "openrouter"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// GenerationConfig selects the provider and sampling parameters shared by all providers
type GenerationConfig struct {
	Provider    LLMProvider `toml:"provider" validate:"oneof=openrouter gemini claude"`
	ModelName   string      `toml:"model_name"`  // Display name sent to observers (default: "LLM")
	Temperature float64     `toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int         `toml:"max_tokens" validate:"gte=0"` // 0 leaves the provider default in place
}

type OpenRouterConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url" validate:"required,url"`
	Model   string `toml:"model" validate:"required"`
	Referer string `toml:"referer"` // Optional HTTP-Referer sent for OpenRouter app attribution
}

type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model" validate:"required"`
}

type ClaudeConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model" validate:"required"`
}

// QueueConfig controls scheduler cadence. One tick is one narration time unit.
type QueueConfig struct {
	TickInterval      string `toml:"tick_interval"`                        // e.g. "1s"
	CountdownTicks    int    `toml:"countdown_ticks" validate:"min=1"`     // pre-generation countdown (default: 60)
	PostCompleteTicks int    `toml:"post_complete_ticks" validate:"min=0"` // delay before the next job starts (default: 10)
	LogLineCap        int    `toml:"log_line_cap" validate:"min=0"`        // max narrative log lines per job (default: 60)
	HistorySize       int    `toml:"history_size" validate:"min=1"`        // prompt history capacity (default: 50)
	CommandBuffer     int    `toml:"command_buffer" validate:"min=1"`      // scheduler inbox capacity
}

// ArtifactsConfig controls where generated documents live and how many are kept
type ArtifactsConfig struct {
	Dir               string `toml:"dir" validate:"required"`
	URLPrefix         string `toml:"url_prefix" validate:"required"`
	MaxFiles          int    `toml:"max_files" validate:"min=1"`
	RetentionSchedule string `toml:"retention_schedule"` // cron expression for the background sweep, empty disables it
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// WebSocketConfig contains observer transport settings
type WebSocketConfig struct {
	WriteTimeout   string `toml:"write_timeout"`   // per-message write deadline (default: "5s")
	MarketThrottle string `toml:"market_throttle"` // min interval between marketCapUpdate broadcasts (default: "1s")
}

// IngestionConfig contains chat, market and trade feed settings
type IngestionConfig struct {
	TestInput        bool   `toml:"test_input"` // Web UI input mode; disables chat ingestion
	TokenAddress     string `toml:"token_address"`
	BirdeyeAPIKey    string `toml:"birdeye_api_key"`
	BirdeyeSocketURL string `toml:"birdeye_socket_url"`
	BirdeyeAPIURL    string `toml:"birdeye_api_url"`
	PumpPortalAPIKey string `toml:"pumpportal_api_key"`
	PumpPortalURL    string `toml:"pumpportal_url"`
	ChatURL          string `toml:"chat_url"`
	ReconnectDelay   string `toml:"reconnect_delay"` // delay between reconnect attempts (default: "5s")
	BufferSize       int    `toml:"buffer_size" validate:"min=1"`
}

// ProjectConfig holds static metadata shown to observers
type ProjectConfig struct {
	Description string `toml:"description"` // markdown
	StaticDir   string `toml:"static_dir"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 3000,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Generation: GenerationConfig{
			Provider:    LLMProviderOpenRouter,
			ModelName:   "LLM",
			Temperature: 0.7,
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "google/gemini-3-pro-preview",
		},
		Gemini: GeminiConfig{
			Model: "gemini-3-flash-preview",
		},
		Claude: ClaudeConfig{
			Model: "claude-sonnet-4-5",
		},
		Queue: QueueConfig{
			TickInterval:      "1s",
			CountdownTicks:    60,
			PostCompleteTicks: 10,
			LogLineCap:        60,
			HistorySize:       50,
			CommandBuffer:     64,
		},
		Artifacts: ArtifactsConfig{
			Dir:               "./public/generated",
			URLPrefix:         "/generated",
			MaxFiles:          20,
			RetentionSchedule: "@every 10m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		WebSocket: WebSocketConfig{
			WriteTimeout:   "5s",
			MarketThrottle: "1s",
		},
		Ingestion: IngestionConfig{
			BirdeyeSocketURL: "wss://public-api.birdeye.so/socket/solana",
			BirdeyeAPIURL:    "https://public-api.birdeye.so",
			PumpPortalURL:    "wss://pumpportal.fun/api/data",
			ChatURL:          "wss://livechat.pump.fun/socket.io/?EIO=4&transport=websocket",
			ReconnectDelay:   "5s",
			BufferSize:       256,
		},
		Project: ProjectConfig{
			Description: "Create the most unique and innovative games with **Text to GameAI**. " +
				"Write your game idea in Pump.fun live chat and watch it come to life. " +
				"Average completion time: 60 seconds. Transform your imagination into playable games instantly.",
			StaticDir: "./public",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied separately via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// PLAYFORGE_* names take priority over the plain deployment names.
func applyEnvOverrides(config *Config) {
	if env := firstEnv("PLAYFORGE_ENV", "GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := firstEnv("PLAYFORGE_SERVER_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PLAYFORGE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("PLAYFORGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PLAYFORGE_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Generation configuration
	if provider := os.Getenv("PLAYFORGE_GENERATION_PROVIDER"); provider != "" {
		config.Generation.Provider = LLMProvider(strings.ToLower(provider))
	}
	if temperature := os.Getenv("PLAYFORGE_GENERATION_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 64); err == nil {
			config.Generation.Temperature = t
		}
	}
	if apiKey := firstEnv("PLAYFORGE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"); apiKey != "" {
		config.OpenRouter.APIKey = apiKey
	}
	if model := os.Getenv("PLAYFORGE_OPENROUTER_MODEL"); model != "" {
		config.OpenRouter.Model = model
	}
	if apiKey := firstEnv("PLAYFORGE_GEMINI_API_KEY", "GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("PLAYFORGE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if apiKey := firstEnv("PLAYFORGE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("PLAYFORGE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Queue configuration
	if tick := os.Getenv("PLAYFORGE_QUEUE_TICK_INTERVAL"); tick != "" {
		if _, err := time.ParseDuration(tick); err == nil {
			config.Queue.TickInterval = tick
		}
	}

	// Artifacts configuration
	if dir := os.Getenv("PLAYFORGE_ARTIFACTS_DIR"); dir != "" {
		config.Artifacts.Dir = dir
	}
	if maxFiles := os.Getenv("PLAYFORGE_ARTIFACTS_MAX_FILES"); maxFiles != "" {
		if m, err := strconv.Atoi(maxFiles); err == nil {
			config.Artifacts.MaxFiles = m
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("PLAYFORGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Ingestion configuration
	if testInput := firstEnv("PLAYFORGE_TEST_INPUT", "TEST_INPUT"); testInput != "" {
		if ti, err := strconv.ParseBool(testInput); err == nil {
			config.Ingestion.TestInput = ti
		}
	}
	if address := firstEnv("PLAYFORGE_TOKEN_ADDRESS", "CONTRACT_ADDRESS", "TOKEN_ADDRESS"); address != "" {
		config.Ingestion.TokenAddress = address
	}
	if apiKey := firstEnv("PLAYFORGE_BIRDEYE_API_KEY", "BIRDEYE_API_KEY"); apiKey != "" {
		config.Ingestion.BirdeyeAPIKey = apiKey
	}
	if apiKey := firstEnv("PLAYFORGE_PUMPPORTAL_API_KEY", "PUMPORTAL_API_KEY", "PUMPPORTAL_API_KEY"); apiKey != "" {
		config.Ingestion.PumpPortalAPIKey = apiKey
	}

	// Project configuration
	if staticDir := os.Getenv("PLAYFORGE_STATIC_DIR"); staticDir != "" {
		config.Project.StaticDir = staticDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

var configValidator = validator.New()

// Validate checks struct constraints plus the duration and cron fields the tags can't express
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.tick_interval":       c.Queue.TickInterval,
		"websocket.write_timeout":   c.WebSocket.WriteTimeout,
		"websocket.market_throttle": c.WebSocket.MarketThrottle,
		"ingestion.reconnect_delay": c.Ingestion.ReconnectDelay,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s %q: %w", name, value, err)
		}
	}

	if c.Artifacts.RetentionSchedule != "" {
		if _, err := cron.ParseStandard(c.Artifacts.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid configuration: artifacts.retention_schedule: %w", err)
		}
	}

	return nil
}

// TickDuration returns the scheduler time unit
func (c *Config) TickDuration() time.Duration {
	return ParseDurationOr(c.Queue.TickInterval, time.Second)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses value, returning fallback when it is empty or malformed
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
