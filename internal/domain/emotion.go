package domain

import (
	"time"

	"github.com/google/uuid"
)

// Las 12 etiquetas de emocion. Lista cerrada; no agregar sin migrar datos.
const (
	EmotionJoy         = "joy"
	EmotionSadness     = "sadness"
	EmotionAnger       = "anger"
	EmotionFear        = "fear"
	EmotionSurprise    = "surprise"
	EmotionDisgust     = "disgust"
	EmotionLove        = "love"
	EmotionAnxiety     = "anxiety"
	EmotionExcitement  = "excitement"
	EmotionFrustration = "frustration"
	EmotionContentment = "contentment"
	EmotionLoneliness  = "loneliness"
)

var EmotionLabels = []string{
	EmotionJoy, EmotionSadness, EmotionAnger, EmotionFear, EmotionSurprise,
	EmotionDisgust, EmotionLove, EmotionAnxiety, EmotionExcitement,
	EmotionFrustration, EmotionContentment, EmotionLoneliness,
}

const (
	IntensityLow    = "low"
	IntensityMedium = "medium"
	IntensityHigh   = "high"
)

// EmotionRecord es append-only; el snippet se recorta a 100 caracteres.
type EmotionRecord struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Emotion        string     `json:"emotion"`
	Confidence     float64    `json:"confidence"`
	Intensity      string     `json:"intensity"`
	Indicators     []string   `json:"indicators,omitempty"`
	Snippet        string     `json:"message_snippet,omitempty"`
	DetectedAt     time.Time  `json:"detected_at"`
}

// Tendencias de sentimiento sobre una ventana de registros.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)
