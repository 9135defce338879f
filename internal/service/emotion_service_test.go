package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
)

type fakeEmotionRepo struct {
	records []domain.EmotionRecord
}

func (f *fakeEmotionRepo) Append(_ context.Context, record domain.EmotionRecord) error {
	f.records = append(f.records, record)
	return nil
}

func (f *fakeEmotionRepo) ListRecent(_ context.Context, userID uuid.UUID, since time.Time, limit int) ([]domain.EmotionRecord, error) {
	var out []domain.EmotionRecord
	for i := len(f.records) - 1; i >= 0; i-- {
		r := f.records[i]
		if r.UserID != userID || r.DetectedAt.Before(since) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestDetectEmotionLexical(t *testing.T) {
	verdict, ok := DetectEmotionLexical("I'm so sad today 😢")
	if !ok {
		t.Fatal("expected a detection")
	}
	if verdict.Emotion != domain.EmotionSadness {
		t.Fatalf("emotion = %s, want sadness", verdict.Emotion)
	}
	if verdict.Intensity != domain.IntensityHigh {
		t.Fatalf("intensity = %s, want high with intensifier", verdict.Intensity)
	}
	if len(verdict.Indicators) < 2 {
		t.Fatalf("indicators = %v, want word and emoji", verdict.Indicators)
	}

	if _, ok := DetectEmotionLexical("the train leaves at nine"); ok {
		t.Fatal("neutral message must not detect an emotion")
	}
}

func TestDetectEmotionIntensityBands(t *testing.T) {
	verdict, _ := DetectEmotionLexical("happy 😄")
	if verdict.Intensity != domain.IntensityMedium {
		t.Fatalf("intensity = %s, want medium at confidence 0.7", verdict.Intensity)
	}

	verdict, _ = DetectEmotionLexical("feeling kind of sad")
	if verdict.Intensity != domain.IntensityLow {
		t.Fatalf("intensity = %s, want low at weak signal", verdict.Intensity)
	}
}

func TestDetectEmotionLexicalWinsOverLLM(t *testing.T) {
	gen := &llm.MockGenerator{Response: `{"emotion":"anger","confidence":0.9,"intensity":"high"}`}
	svc := NewEmotionService(zap.NewNop(), &fakeEmotionRepo{}, gen, "utility")

	verdict, ok := svc.Detect(context.Background(), "I'm so happy 😄 today")
	if !ok || verdict.Emotion != domain.EmotionJoy {
		t.Fatalf("strong lexical signal must skip the LLM, got %+v", verdict)
	}
}

func TestDetectEmotionEscalatesWhenWeak(t *testing.T) {
	gen := &llm.MockGenerator{Response: `{"emotion":"anxiety","confidence":0.8,"intensity":"medium"}`}
	svc := NewEmotionService(zap.NewNop(), &fakeEmotionRepo{}, gen, "utility")

	verdict, ok := svc.Detect(context.Background(), "having a sad week honestly")
	if !ok || verdict.Emotion != domain.EmotionAnxiety {
		t.Fatalf("weak lexical signal must adopt LLM verdict, got %+v", verdict)
	}
	if verdict.Confidence != 0.8 {
		t.Fatalf("confidence = %.1f, want 0.8", verdict.Confidence)
	}
}

func TestDetectEmotionKeepsLexicalWhenLLMWeaker(t *testing.T) {
	gen := &llm.MockGenerator{Response: `{"emotion":"fear","confidence":0.1,"intensity":"low"}`}
	svc := NewEmotionService(zap.NewNop(), &fakeEmotionRepo{}, gen, "utility")

	verdict, ok := svc.Detect(context.Background(), "having a sad week honestly")
	if !ok || verdict.Emotion != domain.EmotionSadness {
		t.Fatalf("weaker LLM verdict must not replace lexical, got %+v", verdict)
	}
}

func TestDetectEmotionNoneStaysNegative(t *testing.T) {
	gen := &llm.MockGenerator{Response: `{"emotion":"none","confidence":0.9,"intensity":"low"}`}
	svc := NewEmotionService(zap.NewNop(), &fakeEmotionRepo{}, gen, "utility")

	if _, ok := svc.Detect(context.Background(), "the meeting is at nine tomorrow morning"); ok {
		t.Fatal("a none verdict must not become a detection")
	}
}

func TestRecordCapsSnippet(t *testing.T) {
	ctx := context.Background()
	repo := &fakeEmotionRepo{}
	svc := NewEmotionService(zap.NewNop(), repo, nil, "")
	userID := uuid.New()

	long := strings.Repeat("a", 300)
	verdict := EmotionVerdict{Emotion: domain.EmotionJoy, Confidence: 0.7, Intensity: domain.IntensityMedium}
	if err := svc.Record(ctx, userID, nil, long, verdict); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.records) != 1 || len(repo.records[0].Snippet) != 100 {
		t.Fatalf("snippet not capped: %d chars", len(repo.records[0].Snippet))
	}
}

func trendRecords(emotions ...string) []domain.EmotionRecord {
	records := make([]domain.EmotionRecord, len(emotions))
	for i, e := range emotions {
		records[i] = domain.EmotionRecord{Emotion: e}
	}
	return records
}

func TestComputeTrend(t *testing.T) {
	// Mas reciente primero: dos alegres seguidos de dos tristes → mejorando.
	improving := trendRecords(domain.EmotionJoy, domain.EmotionJoy, domain.EmotionSadness, domain.EmotionSadness)
	if got := ComputeTrend(improving); got != domain.TrendImproving {
		t.Fatalf("trend = %s, want improving", got)
	}

	declining := trendRecords(domain.EmotionSadness, domain.EmotionSadness, domain.EmotionJoy, domain.EmotionJoy)
	if got := ComputeTrend(declining); got != domain.TrendDeclining {
		t.Fatalf("trend = %s, want declining", got)
	}

	if got := ComputeTrend(trendRecords(domain.EmotionJoy, domain.EmotionSadness)); got != domain.TrendStable {
		t.Fatalf("short history must be stable, got %s", got)
	}

	flat := trendRecords(domain.EmotionJoy, domain.EmotionSadness, domain.EmotionJoy, domain.EmotionSadness)
	if got := ComputeTrend(flat); got != domain.TrendStable {
		t.Fatalf("flat valence must be stable, got %s", got)
	}
}
