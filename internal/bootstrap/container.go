package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-docassist-be/internal/config"
	"ai-docassist-be/internal/controller"
	"ai-docassist-be/internal/pkg/logger"
	"ai-docassist-be/internal/repository/memory"
	"ai-docassist-be/internal/repository/unitofwork"
	"ai-docassist-be/internal/service"
	"ai-docassist-be/pkg/embedding"
	llmOllama "ai-docassist-be/pkg/llm/ollama"
	pktNats "ai-docassist-be/pkg/nats"
	"ai-docassist-be/pkg/refcache"
	"ai-docassist-be/pkg/refcache/bundle"
	"ai-docassist-be/pkg/refcache/gateway"
	"ai-docassist-be/pkg/refcache/pool"
	"ai-docassist-be/pkg/refcache/scoring"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	DocumentController controller.IDocumentController
	ChatController     controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// Shared infrastructure exposed for lifecycle management
	SysLogger    logger.ILogger
	CacheManager *refcache.Manager
	NatsPub      *pktNats.Publisher
	Redis        *redis.Client
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// Chat pipeline log: high volume, file only, rotated.
	pipelineLogger := log.New(&lumberjack.Logger{
		Filename:   cfg.App.ChatLogFilePath,
		MaxSize:    10, // Megabytes
		MaxBackups: 5,
		MaxAge:     30, // Days
		Compress:   true,
	}, "", log.LstdFlags)

	// 2. Event Bus (in-process, for the embedding worker)
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	embeddingProvider := embedding.NewOllamaProvider(
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.EmbeddingModel,
	)
	sysLogger.Info("bootstrap", "Embedding provider initialized", map[string]interface{}{
		"model": cfg.Ai.EmbeddingModel,
	})

	llmProvider := llmOllama.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.LLMModel)
	sysLogger.Info("bootstrap", "LLM provider initialized", map[string]interface{}{
		"model": cfg.Ai.LLMModel,
	})

	// 4. Infrastructure
	// NATS is auxiliary: a missing broker downgrades event publishing to
	// no-ops instead of blocking startup.
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		sysLogger.Warn("bootstrap", "Failed to connect to NATS publisher", map[string]interface{}{
			"error": err.Error(),
		})
		natsPub = nil
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		sysLogger.Warn("bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{
			"error": err.Error(),
		})
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		sysLogger.Warn("bootstrap", "Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// 5. Reference Cache
	poolCfg := pool.Config{
		MaxSize:              cfg.Cache.MaxPoolSize,
		DecayRate:            cfg.Cache.DecayRate,
		AccessBoost:          cfg.Cache.AccessBoost,
		CitationBoost:        cfg.Cache.CitationBoost,
		CleanupMinScore:      cfg.Cache.CleanupMinScore,
		CleanupMaxIdleRounds: cfg.Cache.CleanupMaxIdle,
	}
	if poolCfg.CleanupMinScore < scoring.MinRelevanceFloor {
		poolCfg.CleanupMinScore = scoring.MinRelevanceFloor
	}
	bundleCfg := bundle.Config{
		RecentMessageLimit: cfg.Context.RecentMessageLimit,
		MessageCharCap:     cfg.Context.MessageCharCap,
		RetrievalTopK:      cfg.Context.RetrievalTopK,
		RetrievalMinScore:  cfg.Context.RetrievalMinScore,
	}

	metadataSource := service.NewDocumentMetadataSource(uowFactory)
	messageSource := service.NewChatMessageSource(uowFactory)
	cacheGateway := gateway.NewGateway(rdb, metadataSource, messageSource, poolCfg, pipelineLogger)
	cacheRegistry := memory.NewRefCacheRepositoryWithTTL(
		time.Duration(cfg.Cache.RegistryTTLMin)*time.Minute,
		time.Duration(cfg.Cache.RegistrySweepMin)*time.Minute,
	)
	cacheManager := refcache.NewManager(cacheRegistry, cacheGateway, bundleCfg, pipelineLogger)

	// 6. Services
	publisherService := service.NewPublisherService(cfg.App.EmbedTopicName, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.EmbedTopicName,
		uowFactory,
		embeddingProvider,
	)

	documentService := service.NewDocumentService(
		uowFactory,
		publisherService,
		embeddingProvider,
		natsPub,
	)
	chatService := service.NewChatService(
		uowFactory,
		cacheManager,
		metadataSource,
		embeddingProvider,
		llmProvider,
		natsPub,
		pipelineLogger,
	)

	// 7. Controllers
	return &Container{
		DocumentController: controller.NewDocumentController(documentService),
		ChatController:     controller.NewChatController(chatService),

		ConsumerService: consumerService,

		SysLogger:    sysLogger,
		CacheManager: cacheManager,
		NatsPub:      natsPub,
		Redis:        rdb,
	}
}
