package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"companion-llm/internal/config"
	"companion-llm/internal/db"
	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
	"companion-llm/internal/repository"
	"companion-llm/internal/service"
)

// Cliente de terminal contra el pipeline completo, sin pasar por HTTP.
// Util para probar clasificacion, memorias y streaming en local.

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, cfg.EmbeddingDim); err != nil {
		log.Fatal(err)
	}

	userRepo := repository.NewPgUserRepository(pool)
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

	sessions := service.NewSessionManager(nil, time.Duration(cfg.SessionTTLHours)*time.Hour, cfg.RouteLockTurns)
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
		log.Fatal(err)
	}

	chatSvc := service.NewChatService(service.ChatServiceParams{
		Logger:            logger,
		Conversations:     conversationRepo,
		Messages:          messageRepo,
		Users:             userRepo,
		Buffer:            service.NewMemoryConversationBuffer(cfg.BufferSize),
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

	user, err := userRepo.GetOrCreateByExternalID(ctx, "cli-user")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("---- Chat local (escribe 'salir' para terminar) ----")
	fmt.Println("Comandos: /nueva (conversacion nueva), /persona <arquetipo>")

	var (
		conversationID *uuid.UUID
		archetype      string
	)
	for {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "salir") || strings.EqualFold(text, "exit") {
			return
		}
		if text == "/nueva" {
			conversationID = nil
			fmt.Println("Conversacion nueva.")
			continue
		}
		if rest, ok := strings.CutPrefix(text, "/persona "); ok {
			archetype = strings.TrimSpace(rest)
			fmt.Printf("Arquetipo: %s\n", archetype)
			continue
		}

		events := chatSvc.Chat(ctx, service.ChatRequest{
			UserID:          user.ID,
			ConversationID:  conversationID,
			Message:         text,
			PersonalityName: archetype,
		})
		printTurn(events, &conversationID)
	}
}

func printTurn(events <-chan domain.StreamEvent, conversationID **uuid.UUID) {
	streaming := false
	for ev := range events {
		switch ev.Type {
		case domain.EventClassification:
			fmt.Printf("[%s %.2f]\n", ev.Label, ev.Confidence)
		case domain.EventChunk:
			if !streaming {
				fmt.Print("Companion > ")
				streaming = true
			}
			fmt.Print(ev.Content)
		case domain.EventDone:
			if streaming {
				fmt.Println()
			}
			if id, err := uuid.Parse(ev.ConversationID); err == nil {
				c := id
				*conversationID = &c
			}
		case domain.EventRefusal:
			fmt.Printf("Companion > %s\n", ev.Content)
		case domain.EventAgeVerification:
			fmt.Println("[se requiere verificacion de edad para continuar por esta ruta]")
		case domain.EventError:
			fmt.Printf("[error: %s]\n", ev.Error)
		}
	}
}
