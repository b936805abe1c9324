package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the relay.
type Config struct {
	Port      int
	Version   string
	LogLevel  string
	DataDir   string
	Telemetry TelemetryConfig
	Providers ProvidersConfig
	Chat      ChatConfig
	Discord   DiscordConfig
	Web       WebConfig
	Auth      AuthConfig
	Usage     UsageConfig
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
	SampleRatio  float64
}

// ProvidersConfig holds endpoints and call limits. API keys are not read
// here: drivers look them up lazily on first use.
type ProvidersConfig struct {
	Timeout           time.Duration
	OpenAIBaseURL     string
	AnthropicBaseURL  string
	OpenRouterBaseURL string
	GroqBaseURL       string
	OpenRouterReferer string
	OpenRouterTitle   string
}

type ChatConfig struct {
	// RatePerSecond and Burst bound inbound messages per conversation key.
	// A zero rate disables limiting.
	RatePerSecond float64
	Burst         int
}

type DiscordConfig struct {
	Token         string
	ChannelName   string
	CommandPrefix string
}

type WebConfig struct {
	Model         string
	DefaultPrompt string
	MaxTokens     int
	Temperature   float64
	CORSOrigins   []string
}

type AuthConfig struct {
	// Comma-separated API keys guarding /api/v1. Empty disables auth.
	APIKeys string
}

type UsageConfig struct {
	// SQLite path for the usage ledger. Empty keeps usage in memory only.
	DBPath string
	// Records older than Retention are aged out. Zero keeps them forever.
	Retention         time.Duration
	RetentionInterval time.Duration
	// ArchiveDir receives expired records as JSONL before purging. Empty
	// purges without archiving.
	ArchiveDir      string
	ArchiveCompress bool
	ArchiveMode     string
}

// LoadEnvFile loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load env file")
		return
	}
	log.Debug().Str("path", path).Msg("Loaded env file")
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:     envInt("RELAY_PORT", 5001),
		Version:  envStr("RELAY_VERSION", "0.1.0"),
		LogLevel: envStr("RELAY_LOG_LEVEL", "info"),
		DataDir:  envStr("RELAY_DATA_DIR", "."),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "persona-relay"),
			Insecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  envFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
		Providers: ProvidersConfig{
			Timeout:           envDuration("RELAY_PROVIDER_TIMEOUT", 60*time.Second),
			OpenAIBaseURL:     envStr("OPENAI_BASE_URL", ""),
			AnthropicBaseURL:  envStr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			OpenRouterBaseURL: envStr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			GroqBaseURL:       envStr("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			OpenRouterReferer: envStr("OPENROUTER_REFERER", "https://github.com/liammagee/six-authors-in-search-of-a-character"),
			OpenRouterTitle:   envStr("OPENROUTER_TITLE", "Discord AI Bot"),
		},
		Chat: ChatConfig{
			RatePerSecond: envFloat("RELAY_RATE_PER_SECOND", 1),
			Burst:         envInt("RELAY_RATE_BURST", 5),
		},
		Discord: DiscordConfig{
			Token:         envStr("DISCORD_BOT_TOKEN", ""),
			ChannelName:   envStr("AI_CHANNEL_NAME", "ai-chat"),
			CommandPrefix: envStr("RELAY_COMMAND_PREFIX", "!"),
		},
		Web: WebConfig{
			Model:         envStr("RELAY_WEB_MODEL", "gpt-4o"),
			DefaultPrompt: envStr("RELAY_WEB_PROMPT", "You are a helpful assistant."),
			MaxTokens:     envInt("RELAY_WEB_MAX_TOKENS", 1000),
			Temperature:   envFloat("RELAY_WEB_TEMPERATURE", 0.7),
			CORSOrigins:   envList("RELAY_CORS_ORIGINS", []string{"http://localhost:5001", "http://127.0.0.1:5001"}),
		},
		Auth: AuthConfig{
			APIKeys: envStr("RELAY_API_KEYS", ""),
		},
		Usage: UsageConfig{
			DBPath:            envStr("RELAY_USAGE_DB", ""),
			Retention:         envDuration("RELAY_USAGE_RETENTION", 0),
			RetentionInterval: envDuration("RELAY_USAGE_RETENTION_INTERVAL", time.Hour),
			ArchiveDir:        envStr("RELAY_USAGE_ARCHIVE_DIR", ""),
			ArchiveCompress:   envBool("RELAY_USAGE_ARCHIVE_GZIP", false),
			ArchiveMode:       envStr("RELAY_USAGE_ARCHIVE_MODE", ""),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
