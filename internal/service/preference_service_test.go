package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
)

type fakeUserRepo struct {
	users      map[string]domain.User
	prefs      map[uuid.UUID]domain.Preferences
	archetypes map[uuid.UUID]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:      make(map[string]domain.User),
		prefs:      make(map[uuid.UUID]domain.Preferences),
		archetypes: make(map[uuid.UUID]string),
	}
}

func (f *fakeUserRepo) GetOrCreateByExternalID(_ context.Context, externalID string) (domain.User, error) {
	if u, ok := f.users[externalID]; ok {
		return u, nil
	}
	u := domain.User{ID: uuid.New(), ExternalID: externalID, CreatedAt: time.Now().UTC()}
	f.users[externalID] = u
	return u, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUserRepo) GetPreferences(_ context.Context, userID uuid.UUID) (domain.Preferences, error) {
	return f.prefs[userID], nil
}

func (f *fakeUserRepo) SetPreferences(_ context.Context, userID uuid.UUID, prefs domain.Preferences) error {
	f.prefs[userID] = prefs
	return nil
}

func (f *fakeUserRepo) GetDefaultArchetype(_ context.Context, userID uuid.UUID) (string, error) {
	return f.archetypes[userID], nil
}

func (f *fakeUserRepo) SetDefaultArchetype(_ context.Context, userID uuid.UUID, archetype string) error {
	f.archetypes[userID] = archetype
	return nil
}

func TestDetectPreferences(t *testing.T) {
	prefs := DetectPreferences("Please respond in Spanish and keep it brief, no emojis")
	if prefs.Language == nil || *prefs.Language != "Spanish" {
		t.Fatalf("language = %v, want Spanish", prefs.Language)
	}
	if prefs.ResponseLength == nil || *prefs.ResponseLength != "brief" {
		t.Fatalf("response_length = %v, want brief", prefs.ResponseLength)
	}
	if prefs.EmojiUsage == nil || *prefs.EmojiUsage {
		t.Fatalf("emoji_usage = %v, want false", prefs.EmojiUsage)
	}
	if prefs.Formality != nil || prefs.Tone != nil {
		t.Fatal("unmentioned dimensions must stay nil")
	}
}

func TestDetectPreferencesLanguageWithQualifier(t *testing.T) {
	prefs := DetectPreferences("Please respond only in Spanish from now on, and keep it brief.")
	if prefs.Language == nil || *prefs.Language != "Spanish" {
		t.Fatalf("language = %v, want Spanish", prefs.Language)
	}
	if prefs.ResponseLength == nil || *prefs.ResponseLength != "brief" {
		t.Fatalf("response_length = %v, want brief", prefs.ResponseLength)
	}

	prefs = DetectPreferences("can you write to me always in French")
	if prefs.Language == nil || *prefs.Language != "French" {
		t.Fatalf("language = %v, want French", prefs.Language)
	}
}

func TestDetectPreferencesMoreDimensions(t *testing.T) {
	prefs := DetectPreferences("be more formal and explain it like i'm five")
	if prefs.Formality == nil || *prefs.Formality != "formal" {
		t.Fatalf("formality = %v, want formal", prefs.Formality)
	}
	if prefs.ExplanationStyle == nil || *prefs.ExplanationStyle != "simple" {
		t.Fatalf("explanation_style = %v, want simple", prefs.ExplanationStyle)
	}

	if !DetectPreferences("what's the capital of France?").IsEmpty() {
		t.Fatal("neutral question must not produce preferences")
	}
}

func TestPreferenceUpdateFromMessageMerges(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := NewPreferenceService(zap.NewNop(), repo)
	user, _ := repo.GetOrCreateByExternalID(ctx, "u1")

	if err := svc.UpdateFromMessage(ctx, user.ID, "speak to me in Spanish"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.UpdateFromMessage(ctx, user.ID, "keep it brief please"); err != nil {
		t.Fatalf("update: %v", err)
	}

	prefs, _ := svc.Get(ctx, user.ID)
	if prefs.Language == nil || *prefs.Language != "Spanish" {
		t.Fatal("earlier language preference must survive later updates")
	}
	if prefs.ResponseLength == nil || *prefs.ResponseLength != "brief" {
		t.Fatal("new response_length preference must be applied")
	}
}

func TestPreferenceSetValidates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := NewPreferenceService(zap.NewNop(), repo)
	user, _ := repo.GetOrCreateByExternalID(ctx, "u1")

	bad := "whisper"
	if _, err := svc.Set(ctx, user.ID, domain.Preferences{Tone: &bad}); err == nil {
		t.Fatal("invalid tone must be rejected")
	}

	tone := "calm"
	merged, err := svc.Set(ctx, user.ID, domain.Preferences{Tone: &tone})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if merged.Tone == nil || *merged.Tone != "calm" {
		t.Fatalf("tone = %v, want calm", merged.Tone)
	}
}
