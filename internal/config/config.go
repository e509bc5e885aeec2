package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Ai       AIConfig
	Cache    CacheConfig
	Context  ContextConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	ChatLogFilePath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	EmbedTopicName     string
}

type DatabaseConfig struct {
	Connection string
}

type AuthConfig struct {
	JwtSecret string
}

type AIConfig struct {
	OllamaBaseURL  string
	EmbeddingModel string
	LLMModel       string
}

// CacheConfig tunes the per-conversation document pool.
type CacheConfig struct {
	MaxPoolSize      int
	DecayRate        float64
	AccessBoost      float64
	CitationBoost    float64
	CleanupMinScore  float64
	CleanupMaxIdle   int
	RegistryTTLMin   int
	RegistrySweepMin int
}

// ContextConfig tunes the context bundles handed to the model.
type ContextConfig struct {
	RecentMessageLimit int
	MessageCharCap     int
	RetrievalTopK      int
	RetrievalMinScore  float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			ChatLogFilePath:    getEnv("CHAT_LOG_FILE_PATH", "logs/chat_pipeline.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			EmbedTopicName:     getEnv("EMBED_DOCUMENT_TOPIC_NAME", "EMBED_DOCUMENT_CONTENT"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMModel:       getEnv("LLM_MODEL", "llama3"),
		},
		Cache: CacheConfig{
			MaxPoolSize:      getEnvAsInt("CACHE_MAX_POOL_SIZE", 40),
			DecayRate:        getEnvAsFloat("CACHE_DECAY_RATE", 0.1),
			AccessBoost:      getEnvAsFloat("CACHE_ACCESS_BOOST", 0.1),
			CitationBoost:    getEnvAsFloat("CACHE_CITATION_BOOST", 0.2),
			CleanupMinScore:  getEnvAsFloat("CACHE_CLEANUP_MIN_SCORE", 0.3),
			CleanupMaxIdle:   getEnvAsInt("CACHE_CLEANUP_MAX_IDLE_ROUNDS", 5),
			RegistryTTLMin:   getEnvAsInt("CACHE_REGISTRY_TTL_MINUTES", 60),
			RegistrySweepMin: getEnvAsInt("CACHE_REGISTRY_SWEEP_MINUTES", 10),
		},
		Context: ContextConfig{
			RecentMessageLimit: getEnvAsInt("CONTEXT_RECENT_MESSAGE_LIMIT", 10),
			MessageCharCap:     getEnvAsInt("CONTEXT_MESSAGE_CHAR_CAP", 1500),
			RetrievalTopK:      getEnvAsInt("CONTEXT_RETRIEVAL_TOP_K", 10),
			RetrievalMinScore:  getEnvAsFloat("CONTEXT_RETRIEVAL_MIN_SCORE", 0.5),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
