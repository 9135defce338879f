package domain

import (
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

// Categorias de memoria reconocidas.
const (
	CategoryPersonalFact = "personal_fact"
	CategoryPreference   = "preference"
	CategoryGoal         = "goal"
	CategoryEvent        = "event"
	CategoryRelationship = "relationship"
	CategoryChallenge    = "challenge"
	CategoryAchievement  = "achievement"
	CategoryKnowledge    = "knowledge"
	CategoryInstruction  = "instruction"
	CategoryFact         = "fact"
	CategoryContext      = "context"
)

// MemoryCategories lista las categorias validas en orden estable.
var MemoryCategories = []string{
	CategoryPersonalFact, CategoryPreference, CategoryGoal, CategoryEvent,
	CategoryRelationship, CategoryChallenge, CategoryAchievement,
	CategoryKnowledge, CategoryInstruction, CategoryFact, CategoryContext,
}

// Pesos de los sub-scores de importancia; suman 1.0.
const (
	WeightEmotional       = 0.30
	WeightExplicitMention = 0.25
	WeightFrequency       = 0.15
	WeightRecency         = 0.10
	WeightSpecificity     = 0.10
	WeightPersonal        = 0.10
)

// ImportanceScores contiene los seis sub-scores y el agregado ponderado.
type ImportanceScores struct {
	EmotionalSignificance float64 `json:"emotional_significance"`
	ExplicitMention       float64 `json:"explicit_mention"`
	Frequency             float64 `json:"frequency"`
	Recency               float64 `json:"recency"`
	Specificity           float64 `json:"specificity"`
	PersonalRelevance     float64 `json:"personal_relevance"`
	Aggregate             float64 `json:"aggregate"`
}

// ComputeAggregate recalcula el agregado como suma ponderada.
func (s *ImportanceScores) ComputeAggregate() float64 {
	s.Aggregate = WeightEmotional*s.EmotionalSignificance +
		WeightExplicitMention*s.ExplicitMention +
		WeightFrequency*s.Frequency +
		WeightRecency*s.Recency +
		WeightSpecificity*s.Specificity +
		WeightPersonal*s.PersonalRelevance
	return s.Aggregate
}

type RelatedEntities struct {
	People []string `json:"people,omitempty"`
	Places []string `json:"places,omitempty"`
	Topics []string `json:"topics,omitempty"`
	Dates  []string `json:"dates,omitempty"`
}

// Memory es un hecho atomico derivado del dialogo, con embedding para
// busqueda por similitud coseno y scoping por (user, personality).
type Memory struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	PersonalityID    uuid.UUID        `json:"personality_id"`
	ConversationID   *uuid.UUID       `json:"conversation_id,omitempty"`
	Content          string           `json:"content"`
	Embedding        pgvector.Vector  `json:"-"`
	Category         string           `json:"category"`
	Importance       ImportanceScores `json:"importance_scores"`
	AccessCount      int              `json:"access_count"`
	DecayFactor      float64          `json:"decay_factor"`
	IsActive         bool             `json:"is_active"`
	ConsolidatedFrom []uuid.UUID      `json:"consolidated_from,omitempty"`
	SupersededBy     *uuid.UUID       `json:"superseded_by,omitempty"`
	Entities         RelatedEntities  `json:"related_entities"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	LastAccessedAt   time.Time        `json:"last_accessed"`
}

// ScoredMemory acompaña una memoria con su similitud coseno cruda.
type ScoredMemory struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
}

// MemoryFilters acota la busqueda vectorial.
type MemoryFilters struct {
	Categories    []string
	MinImportance float64
	ActiveOnly    bool
}
