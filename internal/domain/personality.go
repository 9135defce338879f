package domain

import (
	"time"

	"github.com/google/uuid"
)

// TraitScores son los ocho rasgos 0-10 del perfil de personalidad.
type TraitScores struct {
	Warmth       int `json:"warmth"`
	Humor        int `json:"humor"`
	Formality    int `json:"formality"`
	Curiosity    int `json:"curiosity"`
	Empathy      int `json:"empathy"`
	Assertive    int `json:"assertiveness"`
	Creativity   int `json:"creativity"`
	Analytical   int `json:"analytical"`
}

// Behaviors son los cinco interruptores de comportamiento.
type Behaviors struct {
	AsksFollowUps    bool `json:"asks_follow_ups"`
	UsesExamples     bool `json:"uses_examples"`
	AdmitsUncertain  bool `json:"admits_uncertainty"`
	ChecksUnderstood bool `json:"checks_understanding"`
	OffersOpinions   bool `json:"offers_opinions"`
}

// PersonalityProfile define como habla el asistente. Los perfiles globales
// pertenecen a SystemUserID y se comparten en modo lectura.
type PersonalityProfile struct {
	ID                 uuid.UUID   `json:"id"`
	UserID             uuid.UUID   `json:"user_id"`
	Archetype          string      `json:"archetype"`
	Traits             TraitScores `json:"traits"`
	Behaviors          Behaviors   `json:"behaviors"`
	Backstory          string      `json:"backstory,omitempty"`
	CustomInstructions string      `json:"custom_instructions,omitempty"`
	SpeakingStyle      string      `json:"speaking_style,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// IsGlobal indica si el perfil es compartido (dueño = usuario de sistema).
func (p PersonalityProfile) IsGlobal() bool {
	return p.UserID == SystemUserID
}
