package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice client
type Config struct {
	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`   // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en-US"` // Language code (en-US, es, fr, etc.)
	DeepgramBaseURL  string `envconfig:"DEEPGRAM_BASE_URL" default:"wss://api.deepgram.com/v1"`

	// Transcription options
	Punctuate      bool `envconfig:"PUNCTUATE" default:"true"`       // Add punctuation to results
	SmartFormat    bool `envconfig:"SMART_FORMAT" default:"true"`    // Format numbers, dates, etc.
	InterimResults bool `envconfig:"INTERIM_RESULTS" default:"true"` // Deliver provisional results

	// Audio capture configuration
	SampleRate int `envconfig:"SAMPLE_RATE" default:"16000"` // Hz, mono linear16
	Channels   int `envconfig:"CHANNELS" default:"1"`        // Mono
	FrameSize  int `envconfig:"FRAME_SIZE" default:"4096"`   // Samples per frame (~256ms at 16kHz)

	// Session timing configuration
	OpenTimeout    int `envconfig:"OPEN_TIMEOUT" default:"10000"`   // Open-ack timeout in milliseconds
	ConnectBackoff int `envconfig:"CONNECT_BACKOFF" default:"500"`  // Backoff before the single connect retry, milliseconds
	FinishGrace    int `envconfig:"FINISH_GRACE" default:"500"`     // Grace period for trailing finals, milliseconds
	ProbeTimeout   int `envconfig:"PROBE_TIMEOUT" default:"5000"`   // Diagnostic probe timeout in milliseconds
	KeepAliveEvery int `envconfig:"KEEPALIVE_INTERVAL" default:"5"` // Keepalive interval while open, seconds

	// Resilience configuration
	SendBreakerMaxFailures  int `envconfig:"SEND_BREAKER_MAX_FAILURES" default:"5"`   // Consecutive send failures before opening circuit
	SendBreakerResetTimeout int `envconfig:"SEND_BREAKER_RESET_TIMEOUT" default:"10"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`        // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"true"`       // Pretty print logs (console client)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"` // Expose Prometheus metrics
	MetricsPort    string `envconfig:"METRICS_PORT" default:"9090"`     // Port for the metrics listener
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for tests and CI)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if strings.TrimSpace(cfg.DeepgramAPIKey) == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("SAMPLE_RATE must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("FRAME_SIZE must be positive, got %d", cfg.FrameSize)
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
