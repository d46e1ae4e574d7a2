package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Groq (OpenAI-compatible) LLM API
	GroqAPIKey      string
	GroqBaseURL     string
	GroqModel       string
	GroqMaxTokens   int
	GroqTemperature float64

	// Embeddings API used by the knowledge retriever
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	// Knowledge index files produced by cmd/index-knowledge
	KnowledgeIndexPath    string
	KnowledgeMetadataPath string
	RetrievalTopK         int

	// HubSpot CRM
	HubSpotAPIKey  string
	HubSpotBaseURL string

	// Calendly scheduling
	CalendlyAPIKey   string
	CalendlyUsername string
	CalendlyBaseURL  string

	// Session store
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration

	// Rate limits for /api/chat, per client IP
	ChatLimitPerMinute int
	ChatLimitPerHour   int
	ChatLimitPerDay    int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:       getEnv("GROQ_MODEL", "llama3-70b-8192"),
		GroqMaxTokens:   getEnvAsInt("GROQ_MAX_TOKENS", 150),
		GroqTemperature: getEnvAsFloat("GROQ_TEMPERATURE", 0.7),

		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		KnowledgeIndexPath:    getEnv("KNOWLEDGE_INDEX_PATH", "knowledge/index.json"),
		KnowledgeMetadataPath: getEnv("KNOWLEDGE_METADATA_PATH", "knowledge/metadata.json"),
		RetrievalTopK:         getEnvAsInt("RETRIEVAL_TOP_K", 5),

		HubSpotAPIKey:  getEnv("HUBSPOT_API_KEY", ""),
		HubSpotBaseURL: getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),

		CalendlyAPIKey:   getEnv("CALENDLY_API_KEY", ""),
		CalendlyUsername: getEnv("CALENDLY_USERNAME", ""),
		CalendlyBaseURL:  getEnv("CALENDLY_BASE_URL", "https://api.calendly.com"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		ChatLimitPerMinute: getEnvAsInt("CHAT_LIMIT_PER_MINUTE", 10),
		ChatLimitPerHour:   getEnvAsInt("CHAT_LIMIT_PER_HOUR", 50),
		ChatLimitPerDay:    getEnvAsInt("CHAT_LIMIT_PER_DAY", 200),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
