package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/repository"
)

// Tracking de metas: deteccion por patrones en cada turno, matching por
// solapamiento de keywords contra metas activas y bitacora append-only.

var (
	explicitGoalRe = regexp.MustCompile(`\bmy goal is to ([^.!?\n]+)|\bi(?:'ve| have) decided to ([^.!?\n]+)|\bi commit(?:ted)? to ([^.!?\n]+)`)
	implicitGoalRe = regexp.MustCompile(`\bi (?:want to|plan to|hope to|aim to|am going to|wanna) ([^.!?\n]+)|\bi'?m (?:trying|working|saving|training|studying) to ([^.!?\n]+)`)

	progressPositiveRe = regexp.MustCompile(`\b(made progress|getting better|went well|improving|on track|hit a milestone|almost there|finally)\b`)
	progressNegativeRe = regexp.MustCompile(`\b(gave up|setback|falling behind|struggling with|haven'?t (?:had time|been able)|stuck on|slipping)\b`)
	completionRe       = regexp.MustCompile(`\b(finished|completed|achieved|done with|accomplished|reached my goal)\b`)
)

var goalCategoryKeywords = map[string][]string{
	"learning":  {"learn", "study", "course", "language", "read", "skill", "practice"},
	"health":    {"weight", "run", "gym", "exercise", "diet", "sleep", "marathon", "quit smoking", "healthy"},
	"career":    {"job", "promotion", "career", "interview", "startup", "business", "work"},
	"financial": {"save", "money", "debt", "budget", "invest", "buy a house"},
	"creative":  {"write", "paint", "music", "song", "novel", "draw", "album", "film"},
	"social":    {"friends", "meet", "family", "relationship", "social"},
}

var goalStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "my": true, "and": true,
	"of": true, "for": true, "in": true, "on": true, "be": true, "get": true,
	"more": true, "this": true, "that": true, "with": true, "at": true,
}

// GoalCandidate es una meta detectada en un mensaje, aun sin persistir.
type GoalCandidate struct {
	Title      string
	Confidence float64 // 0.9 explicito, 0.6 implicito
	Category   string
}

// DetectGoals extrae candidatos del mensaje. Determinista.
func DetectGoals(message string) []GoalCandidate {
	lower := strings.ToLower(message)
	var out []GoalCandidate
	seen := map[string]bool{}

	collect := func(re *regexp.Regexp, confidence float64) {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			title := ""
			for _, g := range m[1:] {
				if g != "" {
					title = strings.TrimSpace(g)
					break
				}
			}
			if title == "" || seen[title] {
				continue
			}
			seen[title] = true
			out = append(out, GoalCandidate{
				Title:      title,
				Confidence: confidence,
				Category:   categorizeGoal(title),
			})
		}
	}
	collect(explicitGoalRe, 0.9)
	collect(implicitGoalRe, 0.6)
	return out
}

func categorizeGoal(title string) string {
	for _, category := range domain.GoalCategories {
		for _, kw := range goalCategoryKeywords[category] {
			if strings.Contains(title, kw) {
				return category
			}
		}
	}
	return "personal"
}

// goalKeywords son los tokens significativos del titulo.
func goalKeywords(title string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.Trim(w, ".,!?\"'")
		if len(w) > 2 && !goalStopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// keywordOverlap devuelve la fraccion de keywords de la meta presentes en
// el mensaje.
func keywordOverlap(goalTitle, message string) float64 {
	keywords := goalKeywords(goalTitle)
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(message)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// GoalService mantiene metas y su bitacora de progreso.
type GoalService struct {
	logger *zap.Logger
	goals  repository.GoalRepository
}

func NewGoalService(logger *zap.Logger, goals repository.GoalRepository) *GoalService {
	return &GoalService{logger: logger, goals: goals}
}

// GoalTrackResult resume lo que un turno le hizo a las metas del usuario;
// el ensamblador de prompts lo usa para celebrar o animar en la respuesta.
type GoalTrackResult struct {
	NewGoals        []GoalCandidate
	ProgressUpdates []string
	Completions     []string
}

// DetectAndTrack corre sobre cada turno de usuario: crea metas nuevas,
// matchea menciones contra las activas (solapamiento >= 0.3) y registra
// progreso, retrocesos y completacion.
func (s *GoalService) DetectAndTrack(ctx context.Context, userID uuid.UUID, message, emotion string) (GoalTrackResult, error) {
	var result GoalTrackResult
	active, err := s.goals.ListByUser(ctx, userID, domain.GoalStatusActive)
	if err != nil {
		return result, err
	}
	now := time.Now().UTC()

	for i := range active {
		if keywordOverlap(active[i].Title, message) < 0.3 {
			continue
		}
		entry, err := s.trackMention(ctx, &active[i], message, emotion, now)
		if err != nil {
			s.logger.Warn("track goal mention failed", zap.Error(err),
				zap.String("goal_id", active[i].ID.String()))
			continue
		}
		switch entry.Type {
		case domain.ProgressCompletion:
			result.Completions = append(result.Completions, active[i].Title)
		case domain.ProgressUpdate, domain.ProgressSetback:
			result.ProgressUpdates = append(result.ProgressUpdates, active[i].Title)
		}
	}

	for _, candidate := range DetectGoals(message) {
		if s.matchesExisting(active, candidate.Title) {
			continue
		}
		goal := domain.Goal{
			ID:           uuid.New(),
			UserID:       userID,
			Title:        candidate.Title,
			Category:     candidate.Category,
			Status:       domain.GoalStatusActive,
			MentionCount: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.goals.Create(ctx, goal); err != nil {
			s.logger.Warn("create goal failed", zap.Error(err), zap.String("user_id", userID.String()))
			continue
		}
		result.NewGoals = append(result.NewGoals, candidate)
		s.logger.Info("goal detected", zap.String("title", candidate.Title),
			zap.Float64("confidence", candidate.Confidence))
	}
	return result, nil
}

func (s *GoalService) matchesExisting(active []domain.Goal, title string) bool {
	for _, g := range active {
		if keywordOverlap(g.Title, title) >= 0.5 || keywordOverlap(title, g.Title) >= 0.5 {
			return true
		}
	}
	return false
}

func (s *GoalService) trackMention(ctx context.Context, goal *domain.Goal, message, emotion string, now time.Time) (domain.GoalProgress, error) {
	entry := domain.GoalProgress{
		ID:        uuid.New(),
		GoalID:    goal.ID,
		Type:      domain.ProgressMention,
		Sentiment: domain.SentimentNeutral,
		Emotion:   emotion,
		Content:   snippet(message, 200),
		CreatedAt: now,
	}
	lower := strings.ToLower(message)
	switch {
	case completionRe.MatchString(lower):
		entry.Type = domain.ProgressCompletion
		entry.Sentiment = domain.SentimentPositive
		entry.ProgressDelta = 100 - goal.Progress
		goal.Progress = 100
		goal.Status = domain.GoalStatusCompleted
	case progressPositiveRe.MatchString(lower):
		entry.Type = domain.ProgressUpdate
		entry.Sentiment = domain.SentimentPositive
		entry.ProgressDelta = 10
		goal.Progress = clampProgress(goal.Progress + 10)
	case progressNegativeRe.MatchString(lower):
		entry.Type = domain.ProgressSetback
		entry.Sentiment = domain.SentimentNegative
		entry.ProgressDelta = -5
		goal.Progress = clampProgress(goal.Progress - 5)
	}

	goal.MentionCount++
	goal.UpdatedAt = now
	if err := s.goals.Update(ctx, *goal); err != nil {
		return domain.GoalProgress{}, err
	}
	if err := s.goals.AppendProgress(ctx, entry); err != nil {
		return domain.GoalProgress{}, err
	}
	return entry, nil
}

// Create valida y persiste una meta definida por endpoint.
func (s *GoalService) Create(ctx context.Context, goal domain.Goal) (domain.Goal, error) {
	if strings.TrimSpace(goal.Title) == "" {
		return domain.Goal{}, fmt.Errorf("%w: title required", domain.ErrValidation)
	}
	if goal.Category == "" {
		goal.Category = categorizeGoal(strings.ToLower(goal.Title))
	} else if !validGoalCategory(goal.Category) {
		return domain.Goal{}, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, goal.Category)
	}
	now := time.Now().UTC()
	goal.ID = uuid.New()
	goal.Status = domain.GoalStatusActive
	goal.CreatedAt = now
	goal.UpdatedAt = now
	if err := s.goals.Create(ctx, goal); err != nil {
		return domain.Goal{}, err
	}
	return goal, nil
}

// UpdateStatus cambia el estado de una meta del usuario.
func (s *GoalService) UpdateStatus(ctx context.Context, goalID, userID uuid.UUID, status string) (domain.Goal, error) {
	switch status {
	case domain.GoalStatusActive, domain.GoalStatusCompleted, domain.GoalStatusPaused, domain.GoalStatusAbandoned:
	default:
		return domain.Goal{}, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}
	goal, err := s.goals.GetOwned(ctx, goalID, userID)
	if err != nil {
		return domain.Goal{}, err
	}
	goal.Status = status
	if status == domain.GoalStatusCompleted {
		goal.Progress = 100
	}
	goal.UpdatedAt = time.Now().UTC()
	if err := s.goals.Update(ctx, goal); err != nil {
		return domain.Goal{}, err
	}
	return goal, nil
}

func (s *GoalService) List(ctx context.Context, userID uuid.UUID, status string) ([]domain.Goal, error) {
	return s.goals.ListByUser(ctx, userID, status)
}

func (s *GoalService) Progress(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalProgress, error) {
	if _, err := s.goals.GetOwned(ctx, goalID, userID); err != nil {
		return nil, err
	}
	return s.goals.ListProgress(ctx, goalID)
}

func validGoalCategory(category string) bool {
	for _, c := range domain.GoalCategories {
		if c == category {
			return true
		}
	}
	return false
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
