package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
)

type fakePersonalityRepo struct {
	profiles map[uuid.UUID]domain.PersonalityProfile
	upserts  int
}

func newFakePersonalityRepo() *fakePersonalityRepo {
	return &fakePersonalityRepo{profiles: make(map[uuid.UUID]domain.PersonalityProfile)}
}

func (f *fakePersonalityRepo) Upsert(_ context.Context, profile domain.PersonalityProfile) error {
	f.profiles[profile.ID] = profile
	f.upserts++
	return nil
}

func (f *fakePersonalityRepo) GetByID(_ context.Context, id uuid.UUID) (domain.PersonalityProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return domain.PersonalityProfile{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePersonalityRepo) GetByUserAndArchetype(_ context.Context, userID uuid.UUID, archetype string) (domain.PersonalityProfile, error) {
	for _, p := range f.profiles {
		if p.UserID == userID && p.Archetype == archetype {
			return p, nil
		}
	}
	return domain.PersonalityProfile{}, domain.ErrNotFound
}

func (f *fakePersonalityRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.PersonalityProfile, error) {
	var out []domain.PersonalityProfile
	for _, p := range f.profiles {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestSeedGlobalsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newFakePersonalityRepo()
	svc := NewPersonalityService(zap.NewNop(), repo)

	if err := svc.SeedGlobals(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(repo.profiles) != 5 {
		t.Fatalf("seeded %d globals, want 5", len(repo.profiles))
	}

	first, _ := repo.GetByUserAndArchetype(ctx, domain.SystemUserID, "mentor")
	if err := svc.SeedGlobals(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if len(repo.profiles) != 5 {
		t.Fatalf("reseed duplicated profiles: %d", len(repo.profiles))
	}
	second, _ := repo.GetByUserAndArchetype(ctx, domain.SystemUserID, "mentor")
	if first.ID != second.ID {
		t.Fatal("reseed must keep stable ids")
	}
}

func TestResolveCustomOverridesGlobal(t *testing.T) {
	ctx := context.Background()
	repo := newFakePersonalityRepo()
	svc := NewPersonalityService(zap.NewNop(), repo)
	_ = svc.SeedGlobals(ctx)
	userID := uuid.New()

	custom, err := svc.SaveCustom(ctx, domain.PersonalityProfile{
		UserID:    userID,
		Archetype: "coach",
		Traits:    domain.TraitScores{Warmth: 10, Assertive: 10},
	})
	if err != nil {
		t.Fatalf("save custom: %v", err)
	}

	got, err := svc.Resolve(ctx, userID, "coach")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != custom.ID {
		t.Fatal("custom profile must shadow the global archetype")
	}

	// Sin custom cae al global; vacio es companion.
	got, err = svc.Resolve(ctx, userID, "")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if got.Archetype != "companion" || got.UserID != domain.SystemUserID {
		t.Fatalf("default resolve = %+v, want global companion", got)
	}

	if _, err := svc.Resolve(ctx, userID, "wizard"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown archetype error = %v, want validation", err)
	}
}

func TestListCombinesGlobalsAndCustom(t *testing.T) {
	ctx := context.Background()
	repo := newFakePersonalityRepo()
	svc := NewPersonalityService(zap.NewNop(), repo)
	_ = svc.SeedGlobals(ctx)
	userID := uuid.New()

	_, _ = svc.SaveCustom(ctx, domain.PersonalityProfile{UserID: userID, Archetype: "analyst"})

	profiles, err := svc.List(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(profiles) != 6 {
		t.Fatalf("list = %d profiles, want 5 globals + 1 custom", len(profiles))
	}
}

func TestSaveCustomValidates(t *testing.T) {
	ctx := context.Background()
	svc := NewPersonalityService(zap.NewNop(), newFakePersonalityRepo())

	if _, err := svc.SaveCustom(ctx, domain.PersonalityProfile{UserID: domain.SystemUserID, Archetype: "companion"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatal("system-owned profiles must be rejected")
	}
	if _, err := svc.SaveCustom(ctx, domain.PersonalityProfile{UserID: uuid.New()}); !errors.Is(err, domain.ErrValidation) {
		t.Fatal("missing archetype must be rejected")
	}
	if _, err := svc.SaveCustom(ctx, domain.PersonalityProfile{
		UserID:    uuid.New(),
		Archetype: "mentor",
		Traits:    domain.TraitScores{Warmth: 14},
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatal("out-of-range traits must be rejected")
	}
}

func TestDetectArchetypeRequest(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"can you act like a coach for a bit?", "coach"},
		{"please switch to mentor mode", "mentor"},
		{"be my friend", ""},
		{"talk like an analyst", "analyst"},
		{"tell me about coaches", ""},
	}
	for _, tc := range cases {
		if got := DetectArchetypeRequest(tc.message); got != tc.want {
			t.Fatalf("DetectArchetypeRequest(%q) = %q, want %q", tc.message, got, tc.want)
		}
	}
}
