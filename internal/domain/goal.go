package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusPaused    = "paused"
	GoalStatusAbandoned = "abandoned"
)

var GoalCategories = []string{
	"learning", "health", "career", "financial", "personal", "creative", "social",
}

type Goal struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	Progress     float64    `json:"progress_percentage"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
	CheckInFreq  string     `json:"check_in_frequency,omitempty"`
	Milestones   []string   `json:"milestones,omitempty"`
	Notes        []string   `json:"notes,omitempty"`
	Obstacles    []string   `json:"obstacles,omitempty"`
	MentionCount int        `json:"mention_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Tipos de entrada en la bitacora de progreso.
const (
	ProgressMention    = "mention"
	ProgressUpdate     = "update"
	ProgressMilestone  = "milestone"
	ProgressSetback    = "setback"
	ProgressCompletion = "completion"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// GoalProgress es append-only.
type GoalProgress struct {
	ID            uuid.UUID `json:"id"`
	GoalID        uuid.UUID `json:"goal_id"`
	Type          string    `json:"type"`
	Sentiment     string    `json:"sentiment"`
	Emotion       string    `json:"emotion,omitempty"`
	ProgressDelta float64   `json:"progress_delta"`
	Content       string    `json:"content,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
