package bootstrap

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"mediquery-be/internal/config"
	"mediquery-be/internal/controller"
	"mediquery-be/internal/pkg/logger"
	"mediquery-be/internal/repository/implementation"
	"mediquery-be/internal/repository/unitofwork"
	"mediquery-be/internal/service"
	"mediquery-be/pkg/answer"
	"mediquery-be/pkg/cache"
	"mediquery-be/pkg/embedding"
	"mediquery-be/pkg/embedding/jina"
	"mediquery-be/pkg/llm/factory"
	"mediquery-be/pkg/prompt"
	"mediquery-be/pkg/sources"

	pktNats "mediquery-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AskController      controller.IAskController
	AdminController    controller.IAdminController
	DocumentController controller.IDocumentController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	pipelineLogger := initPipelineLogger()

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Providers
	// Initialize Embedding Provider based on Config
	var embeddingProvider embedding.EmbeddingProvider
	var embeddingModel string
	if cfg.Embedding.Provider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Embedding.OllamaBaseURL,
			cfg.Embedding.OllamaModel,
		)
		embeddingModel = cfg.Embedding.OllamaModel
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Embedding.OllamaModel)
	} else if cfg.Embedding.Provider == "jina" {
		embeddingProvider = jina.NewJinaProvider(cfg.Embedding.JinaAPIKey)
		embeddingModel = "jina-embeddings-v2-base-en"
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Embedding.GeminiAPIKey)
		embeddingModel = "text-embedding-004"
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	// Initialize LLM Provider based on Config
	llmProvider, err := factory.NewLLMProvider(
		cfg.LLM.Provider,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		cfg.LLM.APIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.LLM.Provider, cfg.LLM.Model)

	// 4. Infrastructure
	// NATS (analytics boundary, optional)
	natsPub, err := pktNats.NewPublisher(cfg.Nats.URL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Retrieval cache backend
	var cacheStore cache.Store
	if cfg.Cache.Backend == "redis" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.Redis.URL,
			}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		cacheStore = cache.NewRedisStore(rdb, cfg.Cache.Prefix)
		log.Printf("[INFO] Using Cache Backend: REDIS")
	} else {
		cacheStore = cache.NewMemoryStore(cfg.Cache.RetrievalTTL, 10*time.Minute)
		log.Printf("[INFO] Using Cache Backend: MEMORY")
	}
	retrievalCache := cache.New(cacheStore)

	// 5. Prompt Arena
	registry, err := prompt.LoadStore(cfg.Prompt.StorePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[INFO] Prompt store %s not found, using built-in templates", cfg.Prompt.StorePath)
			registry, err = prompt.NewDefaultRegistry()
		}
		if err != nil {
			log.Fatalf("[FATAL] Failed to load prompt templates: %v", err)
		}
	}

	presetRepo := implementation.NewPromptPresetRepository(db)
	presetManager := prompt.NewPresetManager(presetRepo, cfg.Prompt.PresetCacheTTL, pipelineLogger)

	// 6. Retrieval Fleet
	documentRepo := implementation.NewDocumentRepository(db)
	embeddingRepo := implementation.NewDocumentEmbeddingRepository(db)

	buildConnectors := func() ([]sources.Connector, error) {
		assistantTpl, err := registry.Resolve(prompt.StageAssistant)
		if err != nil {
			return nil, err
		}
		return []sources.Connector{
			sources.NewAcademicConnector(cfg.Sources.AcademicBaseURL, cfg.Sources.NCBIAPIKey),
			sources.NewCuratedKBConnector(embeddingProvider, embeddingRepo, documentRepo, cfg.Sources.CuratedThreshold),
			sources.NewAssistantConnector(llmProvider, assistantTpl),
			sources.NewWebConnector(cfg.Sources.WebBaseURL, cfg.Sources.TavilyAPIKey),
		}, nil
	}

	connectors, err := buildConnectors()
	if err != nil {
		log.Fatalf("[FATAL] Failed to build source connectors: %v", err)
	}
	fleet := sources.NewFleet(connectors, map[string]bool{
		sources.IDAcademic:  cfg.Sources.AcademicEnabled,
		sources.IDCuratedKB: cfg.Sources.CuratedEnabled,
		sources.IDAssistant: cfg.Sources.AssistantEnabled,
		sources.IDWeb:       cfg.Sources.WebEnabled,
	})

	// 7. Answer Pipeline
	pipelineCfg := answer.DefaultConfig()
	pipelineCfg.RelevanceThreshold = cfg.Pipeline.RelevanceThreshold
	pipelineCfg.MaxRewrites = cfg.Pipeline.MaxRewrites
	pipelineCfg.MaxTotalIterations = cfg.Pipeline.MaxTotalIterations
	pipelineCfg.FanOutWorkers = cfg.Pipeline.FanOutWorkers
	pipelineCfg.PerCallTimeout = cfg.Pipeline.PerCallTimeout
	pipelineCfg.RetrievalTTL = cfg.Cache.RetrievalTTL
	pipelineCfg.GenerationTTL = cfg.Cache.GenerationTTL
	pipelineCfg.SourceLimits = map[string]int{
		sources.IDAcademic:  cfg.Sources.AcademicMaxResults,
		sources.IDCuratedKB: cfg.Sources.CuratedMaxResults,
		sources.IDAssistant: 1,
		sources.IDWeb:       cfg.Sources.WebMaxResults,
	}
	pipelineCfg.Retry = answer.RetryPolicy{
		MaxRetries:   cfg.Pipeline.RetryMaxAttempts,
		InitialDelay: cfg.Pipeline.RetryInitialDelay,
		MaxDelay:     cfg.Pipeline.RetryMaxDelay,
		Multiplier:   2.0,
	}

	stats := answer.NewStats()
	orchestrator := answer.NewOrchestrator(
		registry,
		fleet.Active(),
		llmProvider,
		retrievalCache,
		stats,
		pipelineCfg,
		pipelineLogger,
	)

	// 8. Services
	publisherService := service.NewPublisherService(cfg.App.DocumentEmbedTopic, pubSub)
	// Embedding traffic is chatty; keep it in its own log file.
	embedLogger := logger.NewIsolatedLogger("logs/embedding.log")
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.DocumentEmbedTopic,
		uowFactory,
		embeddingProvider,
		embedLogger,
	)

	documentService := service.NewDocumentService(uowFactory, publisherService)
	askService := service.NewAskService(
		orchestrator,
		stats,
		retrievalCache,
		uowFactory,
		fleet,
		natsPub,
		cfg.Nats.AnswerCompletedTopic,
		cfg.LLM.Model,
		embeddingModel,
	)
	adminService := service.NewAdminService(
		registry,
		presetManager,
		fleet,
		orchestrator,
		retrievalCache,
		cfg.Prompt.StorePath,
		buildConnectors,
		sysLogger,
	)

	// 9. Controllers
	return &Container{
		AskController:      controller.NewAskController(askService),
		AdminController:    controller.NewAdminController(adminService, askService),
		DocumentController: controller.NewDocumentController(documentService),

		ConsumerService: consumerService,
	}
}

// initPipelineLogger writes pipeline transitions and model calls to a
// dedicated file so request logs stay readable.
func initPipelineLogger() *log.Logger {
	logPath := filepath.Join(".", "logs", "pipeline.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, "[PIPELINE] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}
