package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
	"companion-llm/internal/repository"
)

// fakeMemoryRepo implementa MemoryRepository en memoria con similitudes
// fijadas por test.
type fakeMemoryRepo struct {
	memories     map[uuid.UUID]domain.Memory
	similarities map[uuid.UUID]float64
	created      []uuid.UUID
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{
		memories:     make(map[uuid.UUID]domain.Memory),
		similarities: make(map[uuid.UUID]float64),
	}
}

func (f *fakeMemoryRepo) Create(_ context.Context, memory domain.Memory) error {
	f.memories[memory.ID] = memory
	f.created = append(f.created, memory.ID)
	return nil
}

func (f *fakeMemoryRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Memory, error) {
	m, ok := f.memories[id]
	if !ok {
		return domain.Memory{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMemoryRepo) SearchSimilar(_ context.Context, params repository.MemorySearchParams) ([]domain.ScoredMemory, error) {
	var out []domain.ScoredMemory
	for id, sim := range f.similarities {
		m := f.memories[id]
		if params.Filters.ActiveOnly && !m.IsActive {
			continue
		}
		if sim < params.MinSimilarity {
			continue
		}
		out = append(out, domain.ScoredMemory{Memory: m, Similarity: sim})
	}
	// Orden por similitud descendente, suficiente para los tests.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Similarity > out[i].Similarity {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if params.K > 0 && len(out) > params.K {
		out = out[:params.K]
	}
	return out, nil
}

func (f *fakeMemoryRepo) Update(_ context.Context, memory domain.Memory) error {
	f.memories[memory.ID] = memory
	return nil
}

func (f *fakeMemoryRepo) UpdateAccess(_ context.Context, id uuid.UUID, accessedAt time.Time, decay float64) error {
	m := f.memories[id]
	m.AccessCount++
	m.LastAccessedAt = accessedAt
	m.DecayFactor = decay
	f.memories[id] = m
	return nil
}

func (f *fakeMemoryRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	m := f.memories[id]
	m.IsActive = false
	f.memories[id] = m
	return nil
}

func (f *fakeMemoryRepo) Supersede(_ context.Context, oldID, newID uuid.UUID) error {
	m := f.memories[oldID]
	m.SupersededBy = &newID
	m.IsActive = false
	f.memories[oldID] = m
	return nil
}

func (f *fakeMemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.memories, id)
	return nil
}

func (f *fakeMemoryRepo) DeleteByConversation(_ context.Context, conversationID uuid.UUID) error {
	for id, m := range f.memories {
		if m.ConversationID != nil && *m.ConversationID == conversationID {
			delete(f.memories, id)
		}
	}
	return nil
}

func (f *fakeMemoryRepo) GetByConversation(_ context.Context, conversationID uuid.UUID) ([]domain.Memory, error) {
	var out []domain.Memory
	for _, m := range f.memories {
		if m.ConversationID != nil && *m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemoryRepo) GetByUserAndPersonality(_ context.Context, userID, personalityID uuid.UUID) ([]domain.Memory, error) {
	var out []domain.Memory
	for _, m := range f.memories {
		if m.UserID == userID && m.PersonalityID == personalityID {
			out = append(out, m)
		}
	}
	return out, nil
}

func seedMemory(repo *fakeMemoryRepo, content, category string, similarity float64) domain.Memory {
	m := domain.Memory{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Content:   content,
		Category:  category,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	repo.memories[m.ID] = m
	repo.similarities[m.ID] = similarity
	return m
}

func testConsolidator(repo *fakeMemoryRepo) *Consolidator {
	embedder := &llm.MockEmbedder{Default: []float32{0.1, 0.2}}
	return NewConsolidator(zap.NewNop(), repo, embedder, 0.85, 0.92)
}

func incomingMemory(content, category string) domain.Memory {
	return domain.Memory{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Content:   content,
		Category:  category,
		Embedding: pgvector.NewVector([]float32{0.1, 0.2}),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestConsolidateInsertWhenNoMatch(t *testing.T) {
	repo := newFakeMemoryRepo()
	c := testConsolidator(repo)

	incoming := incomingMemory("user plays guitar", domain.CategoryPersonalFact)
	if err := c.Consolidate(context.Background(), incoming); err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if len(repo.created) != 1 || repo.created[0] != incoming.ID {
		t.Fatalf("expected plain insert, created=%v", repo.created)
	}
}

func TestConsolidateMergeAboveThreshold(t *testing.T) {
	repo := newFakeMemoryRepo()
	existing := seedMemory(repo, "user plays guitar", domain.CategoryPersonalFact, 0.95)
	c := testConsolidator(repo)

	incoming := incomingMemory("user plays acoustic guitar", domain.CategoryPersonalFact)
	if err := c.Consolidate(context.Background(), incoming); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	if len(repo.created) != 1 {
		t.Fatalf("merge should create exactly one memory, got %d", len(repo.created))
	}
	merged := repo.memories[repo.created[0]]
	if len(merged.ConsolidatedFrom) != 1 || merged.ConsolidatedFrom[0] != existing.ID {
		t.Fatalf("consolidated_from = %v, want [%s]", merged.ConsolidatedFrom, existing.ID)
	}
	if repo.memories[existing.ID].IsActive {
		t.Fatal("merged source must be deactivated")
	}
}

func TestConsolidateUpdateSameCategory(t *testing.T) {
	repo := newFakeMemoryRepo()
	existing := seedMemory(repo, "user is learning spanish", domain.CategoryGoal, 0.88)
	c := testConsolidator(repo)

	incoming := incomingMemory("user is learning spanish and french", domain.CategoryGoal)
	if err := c.Consolidate(context.Background(), incoming); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	if len(repo.created) != 0 {
		t.Fatalf("update path must not insert, created=%v", repo.created)
	}
	updated := repo.memories[existing.ID]
	if updated.Content != incoming.Content {
		t.Fatalf("existing memory content = %q, want refreshed", updated.Content)
	}
	if !updated.IsActive {
		t.Fatal("updated memory must stay active")
	}
}

func TestConsolidateRelatedButDifferentInserts(t *testing.T) {
	repo := newFakeMemoryRepo()
	existing := seedMemory(repo, "user is learning spanish", domain.CategoryGoal, 0.88)
	c := testConsolidator(repo)

	// Misma categoria y parecida, pero no refina a la existente: la vieja
	// no debe ser pisada.
	incoming := incomingMemory("user wants to visit spain someday", domain.CategoryGoal)
	if err := c.Consolidate(context.Background(), incoming); err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if len(repo.created) != 1 || repo.created[0] != incoming.ID {
		t.Fatalf("non-subsuming match must insert, created=%v", repo.created)
	}
	if repo.memories[existing.ID].Content != "user is learning spanish" {
		t.Fatalf("existing memory was overwritten: %q", repo.memories[existing.ID].Content)
	}
}

func TestConsolidateSupersedeOnContradiction(t *testing.T) {
	repo := newFakeMemoryRepo()
	existing := seedMemory(repo, "user works at the bakery", domain.CategoryPersonalFact, 0.90)
	c := testConsolidator(repo)

	incoming := incomingMemory("user no longer works at the bakery", domain.CategoryPersonalFact)
	if err := c.Consolidate(context.Background(), incoming); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	old := repo.memories[existing.ID]
	if old.IsActive {
		t.Fatal("superseded memory must be inactive")
	}
	if old.SupersededBy == nil || *old.SupersededBy != incoming.ID {
		t.Fatalf("superseded_by = %v, want %s", old.SupersededBy, incoming.ID)
	}
	if _, ok := repo.memories[incoming.ID]; !ok {
		t.Fatal("superseding memory must be inserted")
	}
}

func TestConsolidateDifferentCategoryInserts(t *testing.T) {
	repo := newFakeMemoryRepo()
	seedMemory(repo, "user visited rome", domain.CategoryEvent, 0.88)
	c := testConsolidator(repo)

	incoming := incomingMemory("user loves rome", domain.CategoryPreference)
	if err := c.Consolidate(context.Background(), incoming); err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if len(repo.created) != 1 || repo.created[0] != incoming.ID {
		t.Fatalf("cross-category near-match must insert, created=%v", repo.created)
	}
}
