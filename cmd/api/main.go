package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"companion-llm/internal/config"
	"companion-llm/internal/db"
	apihttp "companion-llm/internal/http"
	"companion-llm/internal/llm"
	"companion-llm/internal/repository"
	"companion-llm/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, cfg.EmbeddingDim); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	apiKeyRepo := repository.NewPgAPIKeyRepository(pool)
	conversationRepo := repository.NewPgConversationRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)
	memoryRepo := repository.NewPgMemoryRepository(pool)
	personalityRepo := repository.NewPgPersonalityRepository(pool)
	emotionRepo := repository.NewPgEmotionRepository(pool)
	goalRepo := repository.NewPgGoalRepository(pool)
	auditRepo := repository.NewPgAuditRepository(pool)

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	embedBase, embedKey := cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey
	if embedBase == "" {
		embedBase, embedKey = cfg.LLMBaseURL, cfg.LLMAPIKey
	}
	embedder := llm.NewHTTPEmbedder(embedBase, embedKey, cfg.EmbeddingModel, cfg.EmbeddingDim)

	// Redis es opcional: sin el, buffer, sesiones y rate limit viven en
	// memoria del proceso.
	var (
		buffer       service.ConversationBuffer = service.NewMemoryConversationBuffer(cfg.BufferSize)
		sessionStore service.SessionStore
		limiter      service.RateLimiter = service.NewMemoryRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
		redisClient  *redis.Client
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process state", zap.Error(err))
		} else {
			bufferTTL := time.Duration(cfg.BufferIdleMinutes) * time.Minute
			buffer = service.NewRedisConversationBuffer(client, cfg.BufferSize, bufferTTL)
			sessionStore = service.NewRedisSessionStore(client, time.Duration(cfg.SessionTTLHours)*time.Hour)
			limiter = service.NewRedisRateLimiter(client, cfg.RateLimitPerMinute, cfg.RateLimitBurst)
			redisClient = client
		}
		cancel()
	}

	sessions := service.NewSessionManager(sessionStore, time.Duration(cfg.SessionTTLHours)*time.Hour, cfg.RouteLockTurns)
	sessions.StartEviction(ctx, 10*time.Minute)

	judge := service.NewJudgeClient(llmClient, cfg.LLMUtilityModel, cfg.JudgeCacheSize)
	classifier := service.NewContentClassifier(logger, judge, auditRepo, cfg.JudgeThreshold)

	memorySvc := service.NewMemoryService(logger, memoryRepo, embedder, cfg.EmbeddingDim, cfg.MemoryHalfLifeDays)
	categorizer := service.NewCategorizer(llmClient, cfg.LLMUtilityModel)
	consolidator := service.NewConsolidator(logger, memoryRepo, embedder, cfg.ConsolidateFloor, cfg.ConsolidateMerge)
	extractor := service.NewMemoryExtractor(logger, llmClient, cfg.LLMUtilityModel, embedder, memorySvc, categorizer, consolidator)

	preferenceSvc := service.NewPreferenceService(logger, userRepo)
	personalitySvc := service.NewPersonalityService(logger, personalityRepo)
	emotionSvc := service.NewEmotionService(logger, emotionRepo, llmClient, cfg.LLMUtilityModel)
	goalSvc := service.NewGoalService(logger, goalRepo)

	if err := personalitySvc.SeedGlobals(ctx); err != nil {
		logger.Fatal("seed personalities", zap.Error(err))
	}

	chatSvc := service.NewChatService(service.ChatServiceParams{
		Logger:            logger,
		Conversations:     conversationRepo,
		Messages:          messageRepo,
		Users:             userRepo,
		Buffer:            buffer,
		Sessions:          sessions,
		Classifier:        classifier,
		MemorySvc:         memorySvc,
		Embedder:          embedder,
		Streamer:          llmClient,
		Generator:         llmClient,
		Preferences:       preferenceSvc,
		Personalities:     personalitySvc,
		Emotions:          emotionSvc,
		Goals:             goalSvc,
		Extractor:         extractor,
		Limiter:           limiter,
		Model:             cfg.LLMModel,
		UtilityModel:      cfg.LLMUtilityModel,
		BufferSize:        cfg.BufferSize,
		RetrievalTopK:     cfg.RetrievalTopK,
		MinSimilarity:     cfg.MinSimilarity,
		TokenBudget:       cfg.PromptTokenBudget,
		ClassifyTimeout:   time.Duration(cfg.ClassifyTimeoutSec) * time.Second,
		FanoutTimeout:     time.Duration(cfg.FanoutTimeoutSec) * time.Second,
		FirstChunkTimeout: time.Duration(cfg.FirstChunkTimeoutSec) * time.Second,
	})

	jwtSvc := service.NewJWTService(cfg.TokenSecret)
	userSvc := service.NewUserService(logger, userRepo, apiKeyRepo)

	router := apihttp.NewRouter(apihttp.RouterParams{
		Logger:         logger,
		JWTSvc:         jwtSvc,
		UserSvc:        userSvc,
		Auth:           apihttp.AuthConfig{Required: cfg.AuthRequired, AllowDevHeader: cfg.AuthDevHeader},
		AllowedOrigins: cfg.AllowedOrigins,
		AuthH:          apihttp.NewAuthHandler(logger, jwtSvc, userSvc),
		ChatH:          apihttp.NewChatHandler(logger, chatSvc),
		ConvH:          apihttp.NewConversationHandler(logger, conversationRepo, messageRepo, chatSvc, memorySvc, sessions),
		StateH:         apihttp.NewStateHandler(logger, preferenceSvc, personalitySvc, goalSvc, emotionSvc),
		Health: func() apihttp.HealthStatus {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			status := apihttp.HealthStatus{
				DB:    pool.Ping(pingCtx) == nil,
				Redis: true,
				LLM:   llmClient.Reachable(pingCtx),
			}
			if redisClient != nil {
				status.Redis = redisClient.Ping(pingCtx).Err() == nil
			}
			return status
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
