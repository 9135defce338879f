package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
)

type fakeGoalRepo struct {
	goals    map[uuid.UUID]domain.Goal
	progress []domain.GoalProgress
}

func newFakeGoalRepo() *fakeGoalRepo {
	return &fakeGoalRepo{goals: make(map[uuid.UUID]domain.Goal)}
}

func (f *fakeGoalRepo) Create(_ context.Context, goal domain.Goal) error {
	f.goals[goal.ID] = goal
	return nil
}

func (f *fakeGoalRepo) Update(_ context.Context, goal domain.Goal) error {
	f.goals[goal.ID] = goal
	return nil
}

func (f *fakeGoalRepo) GetOwned(_ context.Context, id, userID uuid.UUID) (domain.Goal, error) {
	g, ok := f.goals[id]
	if !ok || g.UserID != userID {
		return domain.Goal{}, domain.ErrNotFound
	}
	return g, nil
}

func (f *fakeGoalRepo) ListByUser(_ context.Context, userID uuid.UUID, status string) ([]domain.Goal, error) {
	var out []domain.Goal
	for _, g := range f.goals {
		if g.UserID != userID {
			continue
		}
		if status != "" && g.Status != status {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeGoalRepo) AppendProgress(_ context.Context, entry domain.GoalProgress) error {
	f.progress = append(f.progress, entry)
	return nil
}

func (f *fakeGoalRepo) ListProgress(_ context.Context, goalID uuid.UUID) ([]domain.GoalProgress, error) {
	var out []domain.GoalProgress
	for _, p := range f.progress {
		if p.GoalID == goalID {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestDetectGoalsExplicitAndImplicit(t *testing.T) {
	goals := DetectGoals("My goal is to run a marathon. I want to learn Italian.")
	if len(goals) != 2 {
		t.Fatalf("detected %d goals, want 2: %+v", len(goals), goals)
	}
	if goals[0].Confidence != 0.9 {
		t.Fatalf("explicit goal confidence = %.1f, want 0.9", goals[0].Confidence)
	}
	if goals[1].Confidence != 0.6 {
		t.Fatalf("implicit goal confidence = %.1f, want 0.6", goals[1].Confidence)
	}
	if goals[0].Category != "health" {
		t.Fatalf("marathon category = %s, want health", goals[0].Category)
	}
	if goals[1].Category != "learning" {
		t.Fatalf("language category = %s, want learning", goals[1].Category)
	}

	if len(DetectGoals("nice weather today")) != 0 {
		t.Fatal("small talk must not produce goals")
	}
}

func TestKeywordOverlap(t *testing.T) {
	if got := keywordOverlap("run a marathon", "I ran today, marathon training went well"); got < 0.3 {
		t.Fatalf("overlap = %.2f, want >= 0.3", got)
	}
	if got := keywordOverlap("run a marathon", "let's talk about cooking"); got != 0 {
		t.Fatalf("unrelated overlap = %.2f, want 0", got)
	}
}

func TestDetectAndTrackCreatesGoal(t *testing.T) {
	ctx := context.Background()
	repo := newFakeGoalRepo()
	svc := NewGoalService(zap.NewNop(), repo)
	userID := uuid.New()

	tracked, err := svc.DetectAndTrack(ctx, userID, "I want to save money for a house", "")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(tracked.NewGoals) != 1 || tracked.NewGoals[0].Category != "financial" {
		t.Fatalf("new goals = %+v, want one financial goal", tracked.NewGoals)
	}
	goals, _ := repo.ListByUser(ctx, userID, domain.GoalStatusActive)
	if len(goals) != 1 {
		t.Fatalf("goals = %d, want 1", len(goals))
	}
	if goals[0].Category != "financial" {
		t.Fatalf("category = %s, want financial", goals[0].Category)
	}

	// La misma meta mencionada de nuevo no se duplica.
	tracked, err = svc.DetectAndTrack(ctx, userID, "I want to save money for a house", "")
	if err != nil {
		t.Fatalf("detect again: %v", err)
	}
	if len(tracked.NewGoals) != 0 {
		t.Fatalf("duplicate mention reported as new goal: %+v", tracked.NewGoals)
	}
	goals, _ = repo.ListByUser(ctx, userID, "")
	if len(goals) != 1 {
		t.Fatalf("duplicate detection created %d goals", len(goals))
	}
}

func TestDetectAndTrackProgressAndCompletion(t *testing.T) {
	ctx := context.Background()
	repo := newFakeGoalRepo()
	svc := NewGoalService(zap.NewNop(), repo)
	userID := uuid.New()

	goal := domain.Goal{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "learn italian",
		Category:  "learning",
		Status:    domain.GoalStatusActive,
		Progress:  20,
		CreatedAt: time.Now().UTC(),
	}
	_ = repo.Create(ctx, goal)

	tracked, err := svc.DetectAndTrack(ctx, userID, "made progress with italian this week", "")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(tracked.ProgressUpdates) != 1 || tracked.ProgressUpdates[0] != "learn italian" {
		t.Fatalf("progress updates = %+v, want [learn italian]", tracked.ProgressUpdates)
	}
	updated := repo.goals[goal.ID]
	if updated.Progress != 30 {
		t.Fatalf("progress = %.0f, want 30", updated.Progress)
	}
	if len(repo.progress) != 1 || repo.progress[0].Type != domain.ProgressUpdate {
		t.Fatalf("progress log wrong: %+v", repo.progress)
	}

	tracked, err = svc.DetectAndTrack(ctx, userID, "i finally finished learning italian!", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(tracked.Completions) != 1 || tracked.Completions[0] != "learn italian" {
		t.Fatalf("completions = %+v, want [learn italian]", tracked.Completions)
	}
	updated = repo.goals[goal.ID]
	if updated.Status != domain.GoalStatusCompleted || updated.Progress != 100 {
		t.Fatalf("completion not applied: %+v", updated)
	}
}

func TestUpdateGoalStatus(t *testing.T) {
	ctx := context.Background()
	repo := newFakeGoalRepo()
	svc := NewGoalService(zap.NewNop(), repo)
	userID := uuid.New()

	goal, err := svc.Create(ctx, domain.Goal{UserID: userID, Title: "write a novel"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if goal.Category != "creative" {
		t.Fatalf("category = %s, want creative", goal.Category)
	}

	if _, err := svc.UpdateStatus(ctx, goal.ID, userID, "dreaming"); err == nil {
		t.Fatal("invalid status must be rejected")
	}
	done, err := svc.UpdateStatus(ctx, goal.ID, userID, domain.GoalStatusCompleted)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if done.Progress != 100 {
		t.Fatalf("completed goal progress = %.0f, want 100", done.Progress)
	}

	// Otro usuario no puede tocar la meta.
	if _, err := svc.UpdateStatus(ctx, goal.ID, uuid.New(), domain.GoalStatusPaused); err == nil {
		t.Fatal("foreign goal must be not-found")
	}
}
