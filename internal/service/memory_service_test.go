package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
)

func TestDecayFactorHalfLife(t *testing.T) {
	svc := NewMemoryService(zap.NewNop(), nil, nil, 384, 30)
	now := time.Now().UTC()

	if got := svc.DecayFactor(now, now); got != 1.0 {
		t.Fatalf("fresh memory decay = %.3f, want 1.0", got)
	}
	got := svc.DecayFactor(now.Add(-30*24*time.Hour), now)
	if got < 0.49 || got > 0.51 {
		t.Fatalf("decay at one half-life = %.3f, want ~0.5", got)
	}
	// Muy viejo: clamp inferior en 0.05.
	if got := svc.DecayFactor(now.Add(-10*365*24*time.Hour), now); got != 0.05 {
		t.Fatalf("ancient memory decay = %.3f, want clamp 0.05", got)
	}
	// Reloj adelantado: nunca sobre 1.0.
	if got := svc.DecayFactor(now.Add(time.Hour), now); got != 1.0 {
		t.Fatalf("future memory decay = %.3f, want 1.0", got)
	}
}

func TestRetrieveRecomputesImportanceOnAgeThreshold(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(zap.NewNop(), repo, nil, 2, 30)
	now := time.Now().UTC()

	// Vieja: dos half-lives de edad, recency congelada en el valor de su
	// creacion. La recuperacion debe refrescarla y persistir.
	old := seedMemory(repo, "user grew up in cordoba", domain.CategoryPersonalFact, 0.9)
	old.CreatedAt = now.Add(-60 * 24 * time.Hour)
	old.Importance = domain.ImportanceScores{Recency: 1.0}
	old.Importance.ComputeAggregate()
	repo.memories[old.ID] = old

	fresh := seedMemory(repo, "user likes mate", domain.CategoryPreference, 0.8)
	fresh.Importance = domain.ImportanceScores{Recency: 1.0}
	fresh.Importance.ComputeAggregate()
	repo.memories[fresh.ID] = fresh

	if _, err := svc.Retrieve(ctx, uuid.New(), uuid.New(), []float32{0.1, 0.2}, 10, 0.5); err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	got := repo.memories[old.ID].Importance.Recency
	if got < 0.30 || got > 0.36 {
		t.Fatalf("old memory recency = %.3f, want ~0.33 after recompute", got)
	}
	if repo.memories[old.ID].AccessCount != 1 {
		t.Fatalf("old memory access_count = %d, want 1", repo.memories[old.ID].AccessCount)
	}
	// La fresca no cruza umbral de edad ni de accesos: queda igual.
	if repo.memories[fresh.ID].Importance.Recency != 1.0 {
		t.Fatalf("fresh memory recency = %.3f, want untouched 1.0", repo.memories[fresh.ID].Importance.Recency)
	}
}

func TestRetrieveRecomputesImportanceOnAccessCount(t *testing.T) {
	ctx := context.Background()
	repo := newFakeMemoryRepo()
	svc := NewMemoryService(zap.NewNop(), repo, nil, 2, 30)

	m := seedMemory(repo, "user runs every morning", domain.CategoryPersonalFact, 0.9)
	m.AccessCount = recomputeAccessEvery - 1
	m.Importance = domain.ImportanceScores{Recency: 0.2}
	m.Importance.ComputeAggregate()
	repo.memories[m.ID] = m

	if _, err := svc.Retrieve(ctx, uuid.New(), uuid.New(), []float32{0.1, 0.2}, 10, 0.5); err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	updated := repo.memories[m.ID]
	if updated.AccessCount != recomputeAccessEvery {
		t.Fatalf("access_count = %d, want %d", updated.AccessCount, recomputeAccessEvery)
	}
	// Recien creada: el recompute sube recency al valor actual.
	if updated.Importance.Recency < 0.95 {
		t.Fatalf("recency = %.3f, want refreshed to ~1.0", updated.Importance.Recency)
	}
}

func scored(similarity, importance, decay float64, updatedAt time.Time) domain.ScoredMemory {
	return domain.ScoredMemory{
		Memory: domain.Memory{
			ID:          uuid.New(),
			Importance:  domain.ImportanceScores{Aggregate: importance},
			DecayFactor: decay,
			UpdatedAt:   updatedAt,
		},
		Similarity: similarity,
	}
}

func TestRankMemoriesOrder(t *testing.T) {
	now := time.Now().UTC()
	low := scored(0.5, 0.2, 1.0, now)
	high := scored(0.9, 0.9, 1.0, now)
	mid := scored(0.7, 0.5, 1.0, now)

	ranked := RankMemories([]domain.ScoredMemory{low, high, mid}, now)
	if ranked[0].Memory.ID != high.Memory.ID || ranked[2].Memory.ID != low.Memory.ID {
		t.Fatal("memories not ranked by combined score")
	}
}

func TestRankMemoriesDecayPenalizesImportance(t *testing.T) {
	now := time.Now().UTC()
	old := scored(0.8, 0.9, 0.05, now)
	fresh := scored(0.8, 0.9, 1.0, now)

	ranked := RankMemories([]domain.ScoredMemory{old, fresh}, now)
	if ranked[0].Memory.ID != fresh.Memory.ID {
		t.Fatal("decayed memory should rank below fresh one at equal similarity")
	}
}

func TestRankMemoriesTieBreakNewerFirst(t *testing.T) {
	now := time.Now().UTC()
	older := scored(0.8, 0.5, 1.0, now.Add(-48*time.Hour))
	newer := scored(0.8, 0.5, 1.0, now.Add(-48*time.Hour))
	newer.Memory.UpdatedAt = now.Add(-time.Hour)

	ranked := RankMemories([]domain.ScoredMemory{older, newer}, now)
	if ranked[0].Memory.ID != newer.Memory.ID {
		t.Fatal("newer memory must rank first")
	}
}
