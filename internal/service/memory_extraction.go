package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
)

// Extraccion de memorias: corre en background despues del `done` del turno.

const extractionPrompt = `Extract durable facts about the user from this exchange.
A fact is worth remembering if it would still matter in a future conversation:
identity, preferences, relationships, goals, events, struggles, achievements,
standing instructions. Ignore small talk and one-off context.

Recent context:
%s

User: %q
Assistant: %q

Respond ONLY a JSON object:
{"memories": ["<one self-contained sentence per fact>"]}
Return {"memories": []} when nothing is worth keeping.
`

type extractionOutput struct {
	Memories []string `json:"memories"`
}

// ExtractionInput es el material de un turno completado.
type ExtractionInput struct {
	UserID           uuid.UUID
	PersonalityID    uuid.UUID
	ConversationID   uuid.UUID
	UserMessage      string
	AssistantMessage string
	RecentContext    []BufferedMessage
	Emotion          string
	EmotionIntensity string
}

// MemoryExtractor produce candidatos, los categoriza, embebe, puntua y los
// pasa por consolidacion. Las escrituras por usuario se serializan con un
// mutex para que la consolidacion vea un snapshot consistente.
type MemoryExtractor struct {
	logger       *zap.Logger
	generator    llm.Generator
	model        string
	embedder     llm.Embedder
	memorySvc    *MemoryService
	categorizer  *Categorizer
	consolidator *Consolidator

	mu        sync.Mutex
	userLocks map[uuid.UUID]*sync.Mutex
}

func NewMemoryExtractor(
	logger *zap.Logger,
	generator llm.Generator,
	model string,
	embedder llm.Embedder,
	memorySvc *MemoryService,
	categorizer *Categorizer,
	consolidator *Consolidator,
) *MemoryExtractor {
	return &MemoryExtractor{
		logger:       logger,
		generator:    generator,
		model:        model,
		embedder:     embedder,
		memorySvc:    memorySvc,
		categorizer:  categorizer,
		consolidator: consolidator,
		userLocks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (e *MemoryExtractor) userLock(userID uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	return l
}

// Extract corre el pipeline completo de un turno. Los errores se loggean y
// no afectan la respuesta ya entregada.
func (e *MemoryExtractor) Extract(ctx context.Context, in ExtractionInput) error {
	candidates, err := e.candidates(ctx, in)
	if err != nil {
		return fmt.Errorf("extract candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	lock := e.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	for _, content := range candidates {
		memory, err := e.buildMemory(ctx, in, content, now)
		if err != nil {
			e.logger.Warn("build memory failed", zap.Error(err), zap.String("user_id", in.UserID.String()))
			continue
		}
		if err := e.storeWithRetry(ctx, memory); err != nil {
			e.logger.Warn("store memory failed", zap.Error(err), zap.String("user_id", in.UserID.String()))
		}
	}
	return nil
}

func (e *MemoryExtractor) candidates(ctx context.Context, in ExtractionInput) ([]string, error) {
	var contextLines []string
	for _, m := range in.RecentContext {
		contextLines = append(contextLines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	prompt := fmt.Sprintf(extractionPrompt,
		strings.Join(contextLines, "\n"), in.UserMessage, in.AssistantMessage)

	raw, err := e.generator.Generate(ctx, prompt, llm.Options{
		Model:       e.model,
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return nil, err
	}
	payload := extractFirstJSONObject(raw)
	if payload == "" {
		return nil, fmt.Errorf("extraction output not json")
	}
	var out extractionOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, err
	}
	var cleaned []string
	for _, c := range out.Memories {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned, nil
}

func (e *MemoryExtractor) buildMemory(ctx context.Context, in ExtractionInput, content string, now time.Time) (domain.Memory, error) {
	vector, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return domain.Memory{}, fmt.Errorf("embed candidate: %w", err)
	}
	entities := ExtractEntities(content)

	// La cuenta de similares se resuelve dentro de la consolidacion; aqui
	// puntuamos con lo que el turno sabe.
	scores := ScoreImportance(ImportanceInput{
		Content:          content,
		Emotion:          in.Emotion,
		EmotionIntensity: in.EmotionIntensity,
		CreatedAt:        now,
		Entities:         entities,
	}, now)

	conversationID := in.ConversationID
	return domain.Memory{
		ID:             uuid.New(),
		UserID:         in.UserID,
		PersonalityID:  in.PersonalityID,
		ConversationID: &conversationID,
		Content:        content,
		Embedding:      pgvector.NewVector(vector),
		Category:       e.categorizer.Categorize(ctx, content),
		Importance:     scores,
		DecayFactor:    1.0,
		IsActive:       true,
		Entities:       entities,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

// storeWithRetry reintenta la escritura de storage hasta 3 veces.
func (e *MemoryExtractor) storeWithRetry(ctx context.Context, memory domain.Memory) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = e.consolidator.Consolidate(ctx, memory); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return err
}
