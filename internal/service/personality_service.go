package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/repository"
)

// Perfiles de personalidad: cinco arquetipos globales sembrados al arrancar
// (dueño: usuario de sistema) mas perfiles custom por usuario.

var globalArchetypes = []domain.PersonalityProfile{
	{
		Archetype: "companion",
		Traits: domain.TraitScores{
			Warmth: 9, Humor: 6, Formality: 2, Curiosity: 7,
			Empathy: 9, Assertive: 4, Creativity: 6, Analytical: 4,
		},
		Behaviors: domain.Behaviors{
			AsksFollowUps: true, UsesExamples: false, AdmitsUncertain: true,
			ChecksUnderstood: false, OffersOpinions: true,
		},
		SpeakingStyle: "warm, personal, conversational; remembers the little things",
	},
	{
		Archetype: "mentor",
		Traits: domain.TraitScores{
			Warmth: 6, Humor: 4, Formality: 6, Curiosity: 8,
			Empathy: 7, Assertive: 7, Creativity: 5, Analytical: 8,
		},
		Behaviors: domain.Behaviors{
			AsksFollowUps: true, UsesExamples: true, AdmitsUncertain: true,
			ChecksUnderstood: true, OffersOpinions: true,
		},
		SpeakingStyle: "patient, structured, teaches by building on what the user knows",
	},
	{
		Archetype: "friend",
		Traits: domain.TraitScores{
			Warmth: 8, Humor: 9, Formality: 1, Curiosity: 6,
			Empathy: 8, Assertive: 5, Creativity: 7, Analytical: 3,
		},
		Behaviors: domain.Behaviors{
			AsksFollowUps: true, UsesExamples: false, AdmitsUncertain: true,
			ChecksUnderstood: false, OffersOpinions: true,
		},
		SpeakingStyle: "casual, playful, honest like a close friend",
	},
	{
		Archetype: "coach",
		Traits: domain.TraitScores{
			Warmth: 6, Humor: 5, Formality: 4, Curiosity: 6,
			Empathy: 6, Assertive: 9, Creativity: 4, Analytical: 7,
		},
		Behaviors: domain.Behaviors{
			AsksFollowUps: true, UsesExamples: true, AdmitsUncertain: false,
			ChecksUnderstood: true, OffersOpinions: true,
		},
		SpeakingStyle: "direct, motivating, goal-focused, celebrates progress",
	},
	{
		Archetype: "analyst",
		Traits: domain.TraitScores{
			Warmth: 3, Humor: 2, Formality: 8, Curiosity: 9,
			Empathy: 4, Assertive: 6, Creativity: 5, Analytical: 10,
		},
		Behaviors: domain.Behaviors{
			AsksFollowUps: false, UsesExamples: true, AdmitsUncertain: true,
			ChecksUnderstood: false, OffersOpinions: false,
		},
		SpeakingStyle: "precise, neutral, evidence first, no filler",
	},
}

var archetypeRequestRe = regexp.MustCompile(`\b(?:act|be|behave|talk)(?: more)? (?:like|as)(?: a| an| my)? (companion|mentor|friend|coach|analyst)\b|\bswitch to (?:the )?(companion|mentor|friend|coach|analyst)(?: mode| personality)?\b`)

// PersonalityService gestiona perfiles globales y custom.
type PersonalityService struct {
	logger   *zap.Logger
	profiles repository.PersonalityRepository
}

func NewPersonalityService(logger *zap.Logger, profiles repository.PersonalityRepository) *PersonalityService {
	return &PersonalityService{logger: logger, profiles: profiles}
}

// SeedGlobals inserta (o refresca) los arquetipos compartidos. Idempotente:
// el id de cada global se deriva del arquetipo.
func (s *PersonalityService) SeedGlobals(ctx context.Context) error {
	now := time.Now().UTC()
	for _, profile := range globalArchetypes {
		existing, err := s.profiles.GetByUserAndArchetype(ctx, domain.SystemUserID, profile.Archetype)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("seed %s: %w", profile.Archetype, err)
		}
		if err == nil {
			profile.ID = existing.ID
			profile.CreatedAt = existing.CreatedAt
		} else {
			profile.ID = uuid.New()
			profile.CreatedAt = now
		}
		profile.UserID = domain.SystemUserID
		profile.UpdatedAt = now
		if err := s.profiles.Upsert(ctx, profile); err != nil {
			return fmt.Errorf("seed %s: %w", profile.Archetype, err)
		}
	}
	s.logger.Info("global personalities seeded", zap.Int("count", len(globalArchetypes)))
	return nil
}

// Resolve devuelve el perfil a usar para una conversacion: el custom del
// usuario si existe, si no el global del mismo arquetipo.
func (s *PersonalityService) Resolve(ctx context.Context, userID uuid.UUID, archetype string) (domain.PersonalityProfile, error) {
	if archetype == "" {
		archetype = "companion"
	}
	profile, err := s.profiles.GetByUserAndArchetype(ctx, userID, archetype)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.PersonalityProfile{}, err
	}
	profile, err = s.profiles.GetByUserAndArchetype(ctx, domain.SystemUserID, archetype)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PersonalityProfile{}, fmt.Errorf("%w: unknown archetype %q", domain.ErrValidation, archetype)
	}
	return profile, err
}

// List devuelve globales mas los custom del usuario.
func (s *PersonalityService) List(ctx context.Context, userID uuid.UUID) ([]domain.PersonalityProfile, error) {
	globals, err := s.profiles.ListByUser(ctx, domain.SystemUserID)
	if err != nil {
		return nil, err
	}
	if userID == domain.SystemUserID {
		return globals, nil
	}
	custom, err := s.profiles.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return append(globals, custom...), nil
}

// SaveCustom valida y persiste un perfil propio del usuario. Un global
// nunca se modifica por esta via.
func (s *PersonalityService) SaveCustom(ctx context.Context, profile domain.PersonalityProfile) (domain.PersonalityProfile, error) {
	if profile.UserID == domain.SystemUserID {
		return domain.PersonalityProfile{}, fmt.Errorf("%w: global profiles are read-only", domain.ErrValidation)
	}
	if profile.Archetype == "" {
		return domain.PersonalityProfile{}, fmt.Errorf("%w: archetype required", domain.ErrValidation)
	}
	if err := validateTraits(profile.Traits); err != nil {
		return domain.PersonalityProfile{}, err
	}
	now := time.Now().UTC()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return domain.PersonalityProfile{}, err
	}
	return profile, nil
}

// DetectArchetypeRequest busca un pedido explicito de cambio de arquetipo
// en el mensaje ("act like a coach"). Devuelve "" si no hay pedido.
func DetectArchetypeRequest(message string) string {
	m := archetypeRequestRe.FindStringSubmatch(strings.ToLower(message))
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func validateTraits(t domain.TraitScores) error {
	for _, v := range []int{t.Warmth, t.Humor, t.Formality, t.Curiosity, t.Empathy, t.Assertive, t.Creativity, t.Analytical} {
		if v < 0 || v > 10 {
			return fmt.Errorf("%w: trait scores must be 0-10", domain.ErrValidation)
		}
	}
	return nil
}
