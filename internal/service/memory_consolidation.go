package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
	"companion-llm/internal/repository"
)

// Consolidacion: antes de insertar una memoria nueva se busca entre las
// activas del usuario y se decide merge, update, supersede o insert.

const (
	consolidateFloor = 0.85 // por debajo, siempre insert
	consolidateMerge = 0.92 // por encima y misma categoria, merge
)

var negationRe = regexp.MustCompile(`\b(no longer|not anymore|don't|do not|doesn't|stopped|quit|never|used to)\b`)

// Consolidator aplica las reglas de deduplicacion sobre el repositorio.
type Consolidator struct {
	logger   *zap.Logger
	memories repository.MemoryRepository
	embedder llm.Embedder
	floor    float64
	mergeAt  float64
}

func NewConsolidator(logger *zap.Logger, memories repository.MemoryRepository, embedder llm.Embedder, floor, mergeAt float64) *Consolidator {
	if floor <= 0 {
		floor = consolidateFloor
	}
	if mergeAt <= 0 {
		mergeAt = consolidateMerge
	}
	return &Consolidator{
		logger:   logger,
		memories: memories,
		embedder: embedder,
		floor:    floor,
		mergeAt:  mergeAt,
	}
}

// Consolidate persiste `incoming` aplicando las reglas contra la memoria
// mas parecida. Idempotente: un candidato identico a una memoria activa
// termina en merge, no en duplicado.
func (c *Consolidator) Consolidate(ctx context.Context, incoming domain.Memory) error {
	matches, err := c.memories.SearchSimilar(ctx, repository.MemorySearchParams{
		UserID:        incoming.UserID,
		PersonalityID: incoming.PersonalityID,
		Query:         incoming.Embedding,
		K:             5,
		MinSimilarity: c.floor,
		Filters:       domain.MemoryFilters{ActiveOnly: true},
	})
	if err != nil {
		return fmt.Errorf("consolidation search: %w", err)
	}
	// La frecuencia se puntua con lo que habia antes de este insert.
	incoming.Importance.Frequency = frequencyScore(len(matches))
	incoming.Importance.ComputeAggregate()

	if len(matches) == 0 {
		return c.memories.Create(ctx, incoming)
	}
	best := matches[0]

	switch {
	case best.Similarity >= c.mergeAt && compatibleCategories(best.Memory.Category, incoming.Category):
		return c.merge(ctx, best.Memory, incoming)
	case contradicts(best.Memory.Content, incoming.Content):
		return c.supersede(ctx, best.Memory, incoming)
	case best.Memory.Category == incoming.Category && refines(incoming.Content, best.Memory.Content):
		return c.update(ctx, best.Memory, incoming)
	default:
		return c.memories.Create(ctx, incoming)
	}
}

// merge funde ambas en una memoria nueva y desactiva la original.
func (c *Consolidator) merge(ctx context.Context, existing, incoming domain.Memory) error {
	merged := incoming
	merged.Content = mergeContents(existing.Content, incoming.Content)
	merged.Entities = MergeEntities(existing.Entities, incoming.Entities)
	merged.Importance = maxImportance(existing.Importance, incoming.Importance)
	merged.ConsolidatedFrom = append(append([]uuid.UUID{}, existing.ConsolidatedFrom...), existing.ID)
	merged.AccessCount = existing.AccessCount

	// El contenido fundido necesita embedding propio.
	if merged.Content != incoming.Content {
		vector, err := c.embedder.Embed(ctx, merged.Content)
		if err != nil {
			return fmt.Errorf("embed merged memory: %w", err)
		}
		merged.Embedding = pgvector.NewVector(vector)
	}
	if err := c.memories.Create(ctx, merged); err != nil {
		return err
	}
	if err := c.memories.Deactivate(ctx, existing.ID); err != nil {
		c.logger.Warn("deactivate merged source failed", zap.Error(err),
			zap.String("memory_id", existing.ID.String()))
	}
	return nil
}

// update refresca la existente con el contenido nuevo, conservando su id.
func (c *Consolidator) update(ctx context.Context, existing, incoming domain.Memory) error {
	existing.Content = incoming.Content
	existing.Embedding = incoming.Embedding
	existing.Entities = MergeEntities(existing.Entities, incoming.Entities)
	existing.Importance = maxImportance(existing.Importance, incoming.Importance)
	existing.UpdatedAt = time.Now().UTC()
	return c.memories.Update(ctx, existing)
}

// supersede inserta la nueva y marca la vieja como reemplazada.
func (c *Consolidator) supersede(ctx context.Context, existing, incoming domain.Memory) error {
	if err := c.memories.Create(ctx, incoming); err != nil {
		return err
	}
	return c.memories.Supersede(ctx, existing.ID, incoming.ID)
}

// compatibleCategories: identicas, o una de las dos es context.
func compatibleCategories(a, b string) bool {
	return a == b || a == domain.CategoryContext || b == domain.CategoryContext
}

// refines: el texto nuevo contiene al viejo normalizado. Solo entonces es
// seguro pisar el contenido existente; una memoria parecida pero distinta
// se inserta aparte.
func refines(incoming, existing string) bool {
	in := strings.ToLower(strings.TrimSpace(incoming))
	ex := strings.ToLower(strings.TrimSpace(existing))
	return ex != "" && strings.Contains(in, ex)
}

// contradicts detecta reemplazo de estado: el candidato niega algo que la
// memoria previa afirmaba (o al reves).
func contradicts(existing, incoming string) bool {
	return negationRe.MatchString(strings.ToLower(incoming)) !=
		negationRe.MatchString(strings.ToLower(existing))
}

func mergeContents(existing, incoming string) string {
	if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(incoming)) {
		return incoming
	}
	if strings.Contains(strings.ToLower(incoming), strings.ToLower(existing)) {
		return incoming
	}
	if strings.Contains(strings.ToLower(existing), strings.ToLower(incoming)) {
		return existing
	}
	return existing + " " + incoming
}

func maxImportance(a, b domain.ImportanceScores) domain.ImportanceScores {
	out := domain.ImportanceScores{
		EmotionalSignificance: maxf(a.EmotionalSignificance, b.EmotionalSignificance),
		ExplicitMention:       maxf(a.ExplicitMention, b.ExplicitMention),
		Frequency:             maxf(a.Frequency, b.Frequency),
		Recency:               maxf(a.Recency, b.Recency),
		Specificity:           maxf(a.Specificity, b.Specificity),
		PersonalRelevance:     maxf(a.PersonalRelevance, b.PersonalRelevance),
	}
	out.ComputeAggregate()
	return out
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
