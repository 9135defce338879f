package service

import (
	"regexp"
	"strings"
	"time"

	"companion-llm/internal/domain"
)

// Scoring de importancia: seis sub-scores ponderados en [0,1].

var explicitMentionRe = regexp.MustCompile(`\b(remember|don't forget|important|note that|keep in mind|make sure)\b`)
var firstPersonRe = regexp.MustCompile(`\b(i|me|my|mine|myself|we|our)\b`)

// ImportanceInput es el contexto del scoring de un candidato.
type ImportanceInput struct {
	Content          string
	Emotion          string // emocion detectada en el turno fuente
	EmotionIntensity string
	SimilarCount     int // memorias previas parecidas
	CreatedAt        time.Time
	Entities         domain.RelatedEntities
}

// ScoreImportance calcula los sub-scores y el agregado.
func ScoreImportance(in ImportanceInput, now time.Time) domain.ImportanceScores {
	scores := domain.ImportanceScores{
		EmotionalSignificance: emotionalScore(in.Emotion, in.EmotionIntensity),
		ExplicitMention:       explicitScore(in.Content),
		Frequency:             frequencyScore(in.SimilarCount),
		Recency:               recencyScore(in.CreatedAt, now),
		Specificity:           specificityScore(in.Content, in.Entities),
		PersonalRelevance:     personalScore(in.Content),
	}
	scores.ComputeAggregate()
	return scores
}

func emotionalScore(emotion, intensity string) float64 {
	if emotion == "" {
		return 0.1
	}
	base := 0.5
	switch emotion {
	case domain.EmotionContentment:
		base = 0.35
	case domain.EmotionLove, domain.EmotionFear, domain.EmotionAnger, domain.EmotionLoneliness:
		base = 0.7
	}
	switch intensity {
	case domain.IntensityHigh:
		base += 0.3
	case domain.IntensityMedium:
		base += 0.1
	}
	return clamp01(base)
}

func explicitScore(content string) float64 {
	if explicitMentionRe.MatchString(strings.ToLower(content)) {
		return 1.0
	}
	return 0.0
}

func frequencyScore(similarCount int) float64 {
	// Saturacion suave: tres menciones previas ya puntuan alto.
	return clamp01(float64(similarCount) / 3.0)
}

func recencyScore(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	return 1.0 / (1.0 + ageDays/30.0)
}

func specificityScore(content string, entities domain.RelatedEntities) float64 {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	density := float64(entityCount(entities)) / float64(words)
	score := density * 5.0
	// Tokens concretos (numeros, fechas) suman un extra fijo.
	if strings.IndexFunc(content, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
		score += 0.2
	}
	return clamp01(score)
}

func personalScore(content string) float64 {
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if firstPersonRe.MatchString(w) {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(words)) * 4.0)
}

// RecomputeImportance refresca recency (y el agregado) de una memoria
// existente; se llama cuando access_count o la edad cruzan umbrales.
func RecomputeImportance(memory *domain.Memory, now time.Time) {
	memory.Importance.Recency = recencyScore(memory.CreatedAt, now)
	memory.Importance.ComputeAggregate()
}
