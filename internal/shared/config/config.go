package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string
	LogLevel    string

	// Webhooks
	WebhookVerifyToken    string
	SingleTenantAccountID string
	WhatsAppAppSecret     string
	InstagramAppSecret    string
	GraphAPIVersion       string
	TenantCacheTTL        time.Duration
	TenantCacheSize       int
	ResolveTimeout        time.Duration

	// Dispatch queue
	QueueMaxAttempts   int
	QueueBackoffBase   time.Duration
	QueueBackoffMax    time.Duration
	QueuePollInterval  time.Duration
	InboundConcurrency int
	StatusConcurrency  int
	JobTimeout         time.Duration
	JobRetention       time.Duration
	StaleJobAfter      time.Duration
	OutboundRatePerSec int
	UnsupportedAudioOn []string

	// Maintenance
	WebhookEventRetentionDays int

	// Agent
	LLMProvider       string
	LLMModel          string
	LLMBaseURL        string
	OpenAIKey         string
	GroqKey           string
	DeepSeekKey       string
	GeminiKey         string
	AgentTimeout      time.Duration
	MemoryMaxMessages int
	MemoryTTL         time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		WebhookVerifyToken:    os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		SingleTenantAccountID: os.Getenv("SINGLE_TENANT_ACCOUNT_ID"),
		WhatsAppAppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
		InstagramAppSecret:    os.Getenv("INSTAGRAM_APP_SECRET"),
		GraphAPIVersion:       getEnv("GRAPH_API_VERSION", "v21.0"),
		TenantCacheTTL:        getDuration("TENANT_CACHE_TTL", 5*time.Minute),
		TenantCacheSize:       getInt("TENANT_CACHE_SIZE", 4096),
		ResolveTimeout:        getDuration("TENANT_RESOLVE_TIMEOUT", 3*time.Second),

		QueueMaxAttempts:   getInt("QUEUE_MAX_ATTEMPTS", 5),
		QueueBackoffBase:   getDuration("QUEUE_BACKOFF_BASE", 2*time.Second),
		QueueBackoffMax:    getDuration("QUEUE_BACKOFF_MAX", 5*time.Minute),
		QueuePollInterval:  getDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
		InboundConcurrency: getInt("QUEUE_INBOUND_CONCURRENCY", 8),
		StatusConcurrency:  getInt("QUEUE_STATUS_CONCURRENCY", 2),
		JobTimeout:         getDuration("QUEUE_JOB_TIMEOUT", 60*time.Second),
		JobRetention:       getDuration("QUEUE_JOB_RETENTION", 7*24*time.Hour),
		StaleJobAfter:      getDuration("QUEUE_STALE_AFTER", 5*time.Minute),
		OutboundRatePerSec: getInt("OUTBOUND_RATE_PER_SEC", 80),
		UnsupportedAudioOn: getList("AGENT_AUDIO_UNSUPPORTED_CHANNELS", []string{"whatsapp", "instagram"}),

		WebhookEventRetentionDays: getInt("WEBHOOK_EVENT_RETENTION_DAYS", 30),

		LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		GroqKey:           os.Getenv("GROQ_API_KEY"),
		DeepSeekKey:       os.Getenv("DEEPSEEK_API_KEY"),
		GeminiKey:         os.Getenv("GEMINI_API_KEY"),
		AgentTimeout:      getDuration("AGENT_TIMEOUT", 25*time.Second),
		MemoryMaxMessages: getInt("AGENT_MEMORY_MAX_MESSAGES", 15),
		MemoryTTL:         getDuration("AGENT_MEMORY_TTL", 24*time.Hour),
	}

	return cfg
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
