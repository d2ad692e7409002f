package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Nats      NatsConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Pipeline  PipelineConfig
	Sources   SourcesConfig
	Prompt    PromptConfig
	Cache     CacheConfig
	JWT       JWTConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	DocumentEmbedTopic string
}

type DatabaseConfig struct {
	Connection string
}

type RedisConfig struct {
	URL string
}

type NatsConfig struct {
	URL                  string
	AnswerCompletedTopic string
}

type LLMConfig struct {
	Provider string // "ollama", "openai", "huggingface"
	Model    string
	BaseURL  string
	APIKey   string
}

type EmbeddingConfig struct {
	Provider      string // "ollama", "gemini", "jina"
	OllamaBaseURL string
	OllamaModel   string
	GeminiAPIKey  string
	JinaAPIKey    string
}

type PipelineConfig struct {
	RelevanceThreshold int
	MaxRewrites        int
	MaxTotalIterations int
	FanOutWorkers      int
	PerCallTimeout     time.Duration
	RetryMaxAttempts   int
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
}

type SourcesConfig struct {
	AcademicEnabled    bool
	AcademicBaseURL    string
	NCBIAPIKey         string
	AcademicMaxResults int

	CuratedEnabled    bool
	CuratedThreshold  float64
	CuratedMaxResults int

	AssistantEnabled bool

	WebEnabled    bool
	WebBaseURL    string
	TavilyAPIKey  string
	WebMaxResults int
}

type PromptConfig struct {
	StorePath      string
	PresetCacheTTL time.Duration
}

type CacheConfig struct {
	Backend       string // "memory" or "redis"
	Prefix        string
	RetrievalTTL  time.Duration
	GenerationTTL time.Duration
}

type JWTConfig struct {
	Secret string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/mediquery.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			DocumentEmbedTopic: getEnv("EMBED_DOCUMENT_TOPIC_NAME", "EMBED_DOCUMENT_CONTENT"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Nats: NatsConfig{
			URL:                  getEnv("NATS_URL", "nats://localhost:4222"),
			AnswerCompletedTopic: getEnv("ANSWER_COMPLETED_TOPIC_NAME", "ANSWER_COMPLETED"),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "ollama"),
			Model:    getEnv("LLM_MODEL", "qwen2.5"),
			BaseURL:  getEnv("LLM_BASE_URL", "http://localhost:11434"),
			APIKey:   getEnv("OPENAI_API_KEY", getEnv("HUGGINGFACE_API_KEY", "")),
		},
		Embedding: EmbeddingConfig{
			Provider:      getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			GeminiAPIKey:  getEnv("GOOGLE_GEMINI_API_KEY", ""),
			JinaAPIKey:    getEnv("JINA_API_KEY", ""),
		},
		Pipeline: PipelineConfig{
			RelevanceThreshold: getEnvAsInt("RELEVANCE_THRESHOLD", 1),
			MaxRewrites:        getEnvAsInt("MAX_REWRITES", 2),
			MaxTotalIterations: getEnvAsInt("MAX_TOTAL_ITERATIONS", 3),
			FanOutWorkers:      getEnvAsInt("PIPELINE_FAN_OUT_WORKERS", 6),
			PerCallTimeout:     time.Duration(getEnvAsInt("PIPELINE_CALL_TIMEOUT_SECONDS", 30)) * time.Second,
			RetryMaxAttempts:   getEnvAsInt("LLM_RETRY_MAX_ATTEMPTS", 3),
			RetryInitialDelay:  time.Duration(getEnvAsInt("LLM_RETRY_INITIAL_DELAY_MS", 500)) * time.Millisecond,
			RetryMaxDelay:      time.Duration(getEnvAsInt("LLM_RETRY_MAX_DELAY_MS", 8000)) * time.Millisecond,
		},
		Sources: SourcesConfig{
			AcademicEnabled:    getEnvAsBool("SOURCE_ACADEMIC_ENABLED", true),
			AcademicBaseURL:    getEnv("PUBMED_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"),
			NCBIAPIKey:         getEnv("NCBI_API_KEY", ""),
			AcademicMaxResults: getEnvAsInt("SOURCE_ACADEMIC_MAX_RESULTS", 3),

			CuratedEnabled:    getEnvAsBool("SOURCE_CURATED_ENABLED", true),
			CuratedThreshold:  getEnvAsFloat("SOURCE_CURATED_SIMILARITY_THRESHOLD", 0.3),
			CuratedMaxResults: getEnvAsInt("SOURCE_CURATED_MAX_RESULTS", 5),

			AssistantEnabled: getEnvAsBool("SOURCE_ASSISTANT_ENABLED", true),

			WebEnabled:    getEnvAsBool("SOURCE_WEB_ENABLED", true),
			WebBaseURL:    getEnv("TAVILY_BASE_URL", "https://api.tavily.com"),
			TavilyAPIKey:  getEnv("TAVILY_API_KEY", ""),
			WebMaxResults: getEnvAsInt("SOURCE_WEB_MAX_RESULTS", 5),
		},
		Prompt: PromptConfig{
			StorePath:      getEnv("PROMPT_STORE_PATH", "prompts.yaml"),
			PresetCacheTTL: time.Duration(getEnvAsInt("PRESET_CACHE_TTL_SECONDS", 60)) * time.Second,
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			Prefix:        getEnv("CACHE_PREFIX", "mediquery"),
			RetrievalTTL:  time.Duration(getEnvAsInt("RETRIEVAL_CACHE_TTL_SECONDS", 3600)) * time.Second,
			GenerationTTL: time.Duration(getEnvAsInt("GENERATION_CACHE_TTL_SECONDS", 3600)) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
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

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
