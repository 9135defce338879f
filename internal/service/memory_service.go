package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
	"companion-llm/internal/repository"
)

// MemoryService envuelve el repositorio vectorial: valida dimension,
// recalcula decay y expone la recuperacion con scoring combinado.
type MemoryService struct {
	logger       *zap.Logger
	memories     repository.MemoryRepository
	embedder     llm.Embedder
	dim          int
	halfLifeDays float64 // T_half
}

func NewMemoryService(logger *zap.Logger, memories repository.MemoryRepository, embedder llm.Embedder, dim int, halfLifeDays float64) *MemoryService {
	if dim <= 0 {
		dim = 384
	}
	if halfLifeDays <= 0 {
		halfLifeDays = 30
	}
	return &MemoryService{
		logger:       logger,
		memories:     memories,
		embedder:     embedder,
		dim:          dim,
		halfLifeDays: halfLifeDays,
	}
}

// Store valida la dimension D y persiste.
func (s *MemoryService) Store(ctx context.Context, memory domain.Memory) (uuid.UUID, error) {
	if len(memory.Embedding.Slice()) != s.dim {
		return uuid.Nil, fmt.Errorf("%w: embedding dimension %d, want %d",
			domain.ErrValidation, len(memory.Embedding.Slice()), s.dim)
	}
	if memory.ID == uuid.Nil {
		memory.ID = uuid.New()
	}
	if err := s.memories.Create(ctx, memory); err != nil {
		return uuid.Nil, err
	}
	return memory.ID, nil
}

// Cada cuantos accesos se refresca el scoring de importancia.
const recomputeAccessEvery = 5

// Retrieve busca por similitud y registra el acceso de las devueltas.
// Cuando el access_count o la edad cruzan umbral, la importancia se
// recalcula y persiste.
func (s *MemoryService) Retrieve(ctx context.Context, userID, personalityID uuid.UUID, query []float32, k int, minSimilarity float64) ([]domain.ScoredMemory, error) {
	results, err := s.memories.SearchSimilar(ctx, repository.MemorySearchParams{
		UserID:        userID,
		PersonalityID: personalityID,
		Query:         pgvector.NewVector(query),
		K:             k,
		MinSimilarity: minSimilarity,
		Filters:       domain.MemoryFilters{ActiveOnly: true},
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, r := range results {
		decay := s.DecayFactor(r.Memory.CreatedAt, now)
		if err := s.memories.UpdateAccess(ctx, r.Memory.ID, now, decay); err != nil {
			s.logger.Warn("update access failed", zap.Error(err), zap.String("memory_id", r.Memory.ID.String()))
			continue
		}
		memory := r.Memory
		memory.AccessCount++
		memory.LastAccessedAt = now
		memory.DecayFactor = decay
		ageDays := now.Sub(memory.CreatedAt).Hours() / 24.0
		if memory.AccessCount%recomputeAccessEvery == 0 || ageDays >= s.halfLifeDays {
			RecomputeImportance(&memory, now)
			if err := s.memories.Update(ctx, memory); err != nil {
				s.logger.Warn("recompute importance failed", zap.Error(err),
					zap.String("memory_id", memory.ID.String()))
			}
		}
	}
	return results, nil
}

// ClearConversation borra las memorias de largo plazo de una conversacion.
func (s *MemoryService) ClearConversation(ctx context.Context, conversationID uuid.UUID) error {
	return s.memories.DeleteByConversation(ctx, conversationID)
}

// DecayFactor aplica half-life: 0.5^(edad_dias/T_half), clampeado.
func (s *MemoryService) DecayFactor(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Pow(0.5, ageDays/s.halfLifeDays)
	if decay < 0.05 {
		return 0.05
	}
	if decay > 1.0 {
		return 1.0
	}
	return decay
}

// RankMemories es el scoring combinado del orquestador:
// 0.6*similitud + 0.3*importancia*decay + 0.1*recencia. Empates por
// updated_at mas nuevo. Funcion pura.
func RankMemories(results []domain.ScoredMemory, now time.Time) []domain.ScoredMemory {
	type ranked struct {
		item  domain.ScoredMemory
		score float64
	}
	out := make([]ranked, 0, len(results))
	for _, r := range results {
		recency := recency01(r.Memory.UpdatedAt, now)
		score := 0.6*r.Similarity +
			0.3*r.Memory.Importance.Aggregate*r.Memory.DecayFactor +
			0.1*recency
		out = append(out, ranked{item: r, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].item.Memory.UpdatedAt.After(out[j].item.Memory.UpdatedAt)
	})
	results = results[:0]
	for _, r := range out {
		results = append(results, r.item)
	}
	return results
}

// recency01 mapea edad a (0,1]: 1.0 para ahora, ~0.5 a los 30 dias.
func recency01(updatedAt, now time.Time) float64 {
	ageDays := now.Sub(updatedAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	return 1.0 / (1.0 + ageDays/30.0)
}
