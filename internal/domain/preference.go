package domain

// Preferences son las seis dimensiones reconocidas de comunicacion.
// nil significa "sin cambio" al hacer merge.
type Preferences struct {
	Language         *string `json:"language,omitempty"`
	Formality        *string `json:"formality,omitempty"`
	Tone             *string `json:"tone,omitempty"`
	EmojiUsage       *bool   `json:"emoji_usage,omitempty"`
	ResponseLength   *string `json:"response_length,omitempty"`
	ExplanationStyle *string `json:"explanation_style,omitempty"`
}

// Merge aplica los campos no nulos de other sobre p.
func (p *Preferences) Merge(other Preferences) {
	if other.Language != nil {
		p.Language = other.Language
	}
	if other.Formality != nil {
		p.Formality = other.Formality
	}
	if other.Tone != nil {
		p.Tone = other.Tone
	}
	if other.EmojiUsage != nil {
		p.EmojiUsage = other.EmojiUsage
	}
	if other.ResponseLength != nil {
		p.ResponseLength = other.ResponseLength
	}
	if other.ExplanationStyle != nil {
		p.ExplanationStyle = other.ExplanationStyle
	}
}

// IsEmpty devuelve true si ninguna dimension esta definida.
func (p Preferences) IsEmpty() bool {
	return p.Language == nil && p.Formality == nil && p.Tone == nil &&
		p.EmojiUsage == nil && p.ResponseLength == nil && p.ExplanationStyle == nil
}

// Valores permitidos por dimension.
var (
	PreferenceLanguages      = []string{"English", "Spanish", "French", "German", "Italian", "Portuguese"}
	PreferenceFormality      = []string{"casual", "formal", "professional"}
	PreferenceTones          = []string{"enthusiastic", "calm", "friendly", "neutral"}
	PreferenceLengths        = []string{"brief", "detailed", "balanced"}
	PreferenceExplainStyles  = []string{"simple", "technical", "analogies"}
)
