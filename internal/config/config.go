package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Extraction ExtractionConfig
	Dispatch   DispatchConfig
	Ingest     IngestConfig
	LogLevel   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string
	MaxUploadBytes int64
}

// ExtractionConfig holds vision model configuration
type ExtractionConfig struct {
	Provider      string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiKey     string
	GeminiModel   string
	OllamaURL     string
	OllamaModel   string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	LenientParse  bool
}

// DispatchConfig holds webhook configuration
type DispatchConfig struct {
	WebhookURL string
	Timeout    time.Duration
	Disabled   bool
}

// IngestConfig holds the image size policy
type IngestConfig struct {
	MaxBytes     int64
	MaxDimension int
	JPEGQuality  int
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Load reads configuration from environment variables
func Load() *Config {
	ollamaURL := getEnv("OLLAMA_URL", "")
	if ollamaURL == "" {
		ollamaURL = getEnv("OLLAMA_HOST", "http://localhost:11434")
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8888"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 20*1024*1024),
		},
		Extraction: ExtractionConfig{
			Provider:      strings.ToLower(getEnv("CARDSCAN_PROVIDER", ProviderOpenAI)),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
			GeminiKey:     getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			OllamaURL:     ollamaURL,
			OllamaModel:   getEnv("OLLAMA_MODEL", "mistral-small3.2:24b"),
			Temperature:   getEnvAsFloat("EXTRACTION_TEMPERATURE", 0.1),
			MaxTokens:     getEnvAsInt("EXTRACTION_MAX_TOKENS", 1000),
			Timeout:       getEnvAsDuration("EXTRACTION_TIMEOUT", 30*time.Second),
			LenientParse:  getEnvAsBool("CARDSCAN_LENIENT_PARSE", false),
		},
		Dispatch: DispatchConfig{
			WebhookURL: getEnv("MAKE_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 15*time.Second),
		},
		Ingest: IngestConfig{
			MaxBytes:     getEnvAsInt64("MAX_IMAGE_BYTES", 5*1024*1024),
			MaxDimension: getEnvAsInt("MAX_IMAGE_DIMENSION", 2048),
			JPEGQuality:  getEnvAsInt("JPEG_QUALITY", 85),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks the configuration needed for extraction. The webhook is
// checked only when dispatch is enabled.
func (c *Config) Validate() error {
	switch c.Extraction.Provider {
	case ProviderOpenAI:
		if c.Extraction.OpenAIKey == "" {
			return apperr.Missing("OPENAI_API_KEY")
		}
	case ProviderGemini:
		if c.Extraction.GeminiKey == "" {
			return apperr.Missing("GEMINI_API_KEY")
		}
	case ProviderOllama:
		if c.Extraction.OllamaURL == "" {
			return apperr.Missing("OLLAMA_URL")
		}
	default:
		return apperr.New(apperr.ConfigMissing, fmt.Sprintf("unsupported provider %q", c.Extraction.Provider), nil)
	}

	if c.Extraction.Timeout <= 0 {
		return apperr.New(apperr.ConfigMissing, "EXTRACTION_TIMEOUT must be positive", nil)
	}
	if c.Ingest.MaxBytes <= 0 {
		return apperr.New(apperr.ConfigMissing, "MAX_IMAGE_BYTES must be positive", nil)
	}
	if c.Ingest.JPEGQuality < 1 || c.Ingest.JPEGQuality > 100 {
		return apperr.New(apperr.ConfigMissing, "JPEG_QUALITY must be between 1 and 100", nil)
	}

	if c.Dispatch.Disabled {
		return nil
	}
	if c.Dispatch.WebhookURL == "" {
		return apperr.Missing("MAKE_WEBHOOK_URL")
	}
	u, err := url.Parse(c.Dispatch.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.ConfigMissing, "MAKE_WEBHOOK_URL must be an absolute http(s) URL", err)
	}
	return nil
}

// WebhookTimeout clamps the configured timeout to 10-30s
func (c *Config) WebhookTimeout() time.Duration {
	t := c.Dispatch.Timeout
	switch {
	case t < 10*time.Second:
		return 10 * time.Second
	case t > 30*time.Second:
		return 30 * time.Second
	default:
		return t
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
