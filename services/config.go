package services

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/rehearsal-ai/backend/repository"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Store     StoreConfig
	AI        AIConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	Media     MediaConfig
	Sessions  SessionsConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL          string
	Seed         bool
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

// StoreConfig bounds the retry behavior applied at the store boundary.
type StoreConfig struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
}

// RetryPolicy converts the config section into the policy the repository
// decorator consumes.
func (c StoreConfig) RetryPolicy() repository.RetryPolicy {
	return repository.RetryPolicy{
		MaxAttempts:    c.RetryMaxAttempts,
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
		Multiplier:     c.RetryMultiplier,
	}
}

// AIConfig carries one API key per supported provider plus the request
// bounds applied to every content-generating call.
type AIConfig struct {
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	RequestTimeout  time.Duration
	Temperature     float64
	MaxOutputTokens int64
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

// MediaConfig locates the directory tree whiteboard snapshots and screen
// captures are written under.
type MediaConfig struct {
	Root string
}

// SessionsConfig governs the idle-session reaper.
type SessionsConfig struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("websocket.allowed_origins", "")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("ai.request_timeout", "30s")
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("ai.max_output_tokens", 2048)
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.seed", "true")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("store.retry_max_attempts", 3)
	viper.SetDefault("store.retry_initial_backoff", "100ms")
	viper.SetDefault("store.retry_max_backoff", "2s")
	viper.SetDefault("store.retry_multiplier", 2.0)
	viper.SetDefault("media.root", "./media")
	viper.SetDefault("sessions.idle_timeout", "30m")
	viper.SetDefault("sessions.reap_interval", "1m")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	viper.BindEnv("ai.request_timeout", "AI_REQUEST_TIMEOUT")
	viper.BindEnv("ai.temperature", "AI_TEMPERATURE")
	viper.BindEnv("ai.max_output_tokens", "AI_MAX_OUTPUT_TOKENS")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.seed", "DATABASE_SEED")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("store.retry_max_attempts", "STORE_RETRY_MAX_ATTEMPTS")
	viper.BindEnv("store.retry_initial_backoff", "STORE_RETRY_INITIAL_BACKOFF")
	viper.BindEnv("store.retry_max_backoff", "STORE_RETRY_MAX_BACKOFF")
	viper.BindEnv("store.retry_multiplier", "STORE_RETRY_MULTIPLIER")
	viper.BindEnv("media.root", "MEDIA_ROOT")
	viper.BindEnv("sessions.idle_timeout", "SESSION_IDLE_TIMEOUT")
	viper.BindEnv("sessions.reap_interval", "SESSION_REAP_INTERVAL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			Seed:         viper.GetBool("database.seed"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		Store: StoreConfig{
			RetryMaxAttempts:    viper.GetInt("store.retry_max_attempts"),
			RetryInitialBackoff: viper.GetDuration("store.retry_initial_backoff"),
			RetryMaxBackoff:     viper.GetDuration("store.retry_max_backoff"),
			RetryMultiplier:     viper.GetFloat64("store.retry_multiplier"),
		},
		AI: AIConfig{
			GeminiAPIKey:    viper.GetString("gemini.api_key"),
			OpenAIAPIKey:    viper.GetString("openai.api_key"),
			AnthropicAPIKey: viper.GetString("anthropic.api_key"),
			RequestTimeout:  viper.GetDuration("ai.request_timeout"),
			Temperature:     viper.GetFloat64("ai.temperature"),
			MaxOutputTokens: viper.GetInt64("ai.max_output_tokens"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
		Media: MediaConfig{
			Root: viper.GetString("media.root"),
		},
		Sessions: SessionsConfig{
			IdleTimeout:  viper.GetDuration("sessions.idle_timeout"),
			ReapInterval: viper.GetDuration("sessions.reap_interval"),
		},
	}
}
