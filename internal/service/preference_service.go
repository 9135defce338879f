package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/repository"
)

// Preferencias de comunicacion: deteccion determinista por patrones sobre
// el mensaje del usuario, y merge persistente campo a campo.

type preferenceRule struct {
	re    *regexp.Regexp
	apply func(prefs *domain.Preferences, match []string)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

var languageAliases = map[string]string{
	"english": "English", "spanish": "Spanish", "french": "French",
	"german": "German", "italian": "Italian", "portuguese": "Portuguese",
	"ingles": "English", "español": "Spanish", "espanol": "Spanish",
}

var preferenceRules = []preferenceRule{
	{
		// Hasta dos palabras entre el verbo y el idioma ("respond only in
		// spanish", "talk to me always in french").
		re: regexp.MustCompile(`\b(?:speak|talk|reply|respond|answer|write)(?: to me)?(?: \w+){0,2} in (\w+)\b`),
		apply: func(p *domain.Preferences, m []string) {
			if lang, ok := languageAliases[strings.ToLower(m[1])]; ok {
				p.Language = strPtr(lang)
			}
		},
	},
	{
		re: regexp.MustCompile(`\bbe (?:more )?(casual|formal|professional)\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.Formality = strPtr(m[1])
		},
	},
	{
		re: regexp.MustCompile(`\b(?:be|sound|stay) (?:more )?(enthusiastic|calm|friendly|neutral)\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.Tone = strPtr(m[1])
		},
	},
	{
		re: regexp.MustCompile(`\b(?:no|stop using|don't use|do not use|without) emojis?\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.EmojiUsage = boolPtr(false)
		},
	},
	{
		re: regexp.MustCompile(`\buse (?:more )?emojis?\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.EmojiUsage = boolPtr(true)
		},
	},
	{
		re: regexp.MustCompile(`\b(?:keep (?:it|answers|responses)|be) (?:short|brief|concise)\b|\bshorter (?:answers|responses)\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.ResponseLength = strPtr("brief")
		},
	},
	{
		re: regexp.MustCompile(`\b(?:more detail(?:ed|s)?|longer (?:answers|responses)|elaborate more)\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.ResponseLength = strPtr("detailed")
		},
	},
	{
		re: regexp.MustCompile(`\bexplain (?:it |things )?(?:like i'?m (?:five|5)|simply|in simple terms)\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.ExplanationStyle = strPtr("simple")
		},
	},
	{
		re: regexp.MustCompile(`\b(?:be (?:more )?technical|technical (?:details|depth)|don't dumb it down)\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.ExplanationStyle = strPtr("technical")
		},
	},
	{
		re: regexp.MustCompile(`\buse (?:more )?(?:analogies|metaphors)\b|\bexplain with analogies\b`),
		apply: func(p *domain.Preferences, m []string) {
			p.ExplanationStyle = strPtr("analogies")
		},
	},
}

// DetectPreferences corre las reglas sobre un mensaje. Determinista; los
// campos no mencionados quedan en nil.
func DetectPreferences(message string) domain.Preferences {
	lower := strings.ToLower(message)
	var prefs domain.Preferences
	for _, rule := range preferenceRules {
		if m := rule.re.FindStringSubmatch(lower); m != nil {
			rule.apply(&prefs, m)
		}
	}
	return prefs
}

// PreferenceService persiste las preferencias y las actualiza desde el
// contenido de los turnos.
type PreferenceService struct {
	logger *zap.Logger
	users  repository.UserRepository
}

func NewPreferenceService(logger *zap.Logger, users repository.UserRepository) *PreferenceService {
	return &PreferenceService{logger: logger, users: users}
}

func (s *PreferenceService) Get(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	return s.users.GetPreferences(ctx, userID)
}

// Set hace merge explicito (endpoint PUT): los campos nil del payload no
// pisan lo guardado.
func (s *PreferenceService) Set(ctx context.Context, userID uuid.UUID, incoming domain.Preferences) (domain.Preferences, error) {
	if err := validatePreferences(incoming); err != nil {
		return domain.Preferences{}, err
	}
	current, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	current.Merge(incoming)
	if err := s.users.SetPreferences(ctx, userID, current); err != nil {
		return domain.Preferences{}, err
	}
	return current, nil
}

// UpdateFromMessage corre la deteccion y persiste solo si hubo señal.
func (s *PreferenceService) UpdateFromMessage(ctx context.Context, userID uuid.UUID, message string) error {
	detected := DetectPreferences(message)
	if detected.IsEmpty() {
		return nil
	}
	current, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}
	current.Merge(detected)
	if err := s.users.SetPreferences(ctx, userID, current); err != nil {
		return err
	}
	s.logger.Info("preferences updated from message", zap.String("user_id", userID.String()))
	return nil
}

func validatePreferences(p domain.Preferences) error {
	check := func(value *string, allowed []string, field string) error {
		if value == nil {
			return nil
		}
		for _, a := range allowed {
			if a == *value {
				return nil
			}
		}
		return fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, field, *value)
	}
	if err := check(p.Language, domain.PreferenceLanguages, "language"); err != nil {
		return err
	}
	if err := check(p.Formality, domain.PreferenceFormality, "formality"); err != nil {
		return err
	}
	if err := check(p.Tone, domain.PreferenceTones, "tone"); err != nil {
		return err
	}
	if err := check(p.ResponseLength, domain.PreferenceLengths, "response_length"); err != nil {
		return err
	}
	return check(p.ExplanationStyle, domain.PreferenceExplainStyles, "explanation_style")
}
