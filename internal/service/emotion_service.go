package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
	"companion-llm/internal/repository"
)

// Deteccion de emocion: lexicon + emojis + patrones por etiqueta. El LLM
// solo entra cuando la señal lexica es debil y el mensaje lo amerita.

type emotionLexicon struct {
	emotion  string
	words    []string
	emojis   []string
	patterns []*regexp.Regexp
}

var emotionLexicons = []emotionLexicon{
	{domain.EmotionJoy,
		[]string{"happy", "glad", "great", "wonderful", "amazing", "delighted", "cheerful"},
		[]string{"😄", "😊", "🙂", "😀"},
		compileAll(`\bso happy\b`, `\bfeeling great\b`)},
	{domain.EmotionSadness,
		[]string{"sad", "down", "depressed", "miserable", "unhappy", "crying", "heartbroken"},
		[]string{"😢", "😭", "☹️", "😞"},
		compileAll(`\bfeel(?:ing)? (?:so )?(?:sad|down|low)\b`)},
	{domain.EmotionAnger,
		[]string{"angry", "furious", "mad", "pissed", "outraged", "livid"},
		[]string{"😠", "😡", "🤬"},
		compileAll(`\bmakes me (?:so )?(?:angry|mad)\b`)},
	{domain.EmotionFear,
		[]string{"afraid", "scared", "terrified", "frightened", "dread"},
		[]string{"😨", "😱"},
		compileAll(`\bi'?m (?:so )?(?:afraid|scared|terrified)\b`)},
	{domain.EmotionSurprise,
		[]string{"surprised", "shocked", "stunned", "unexpected", "unbelievable"},
		[]string{"😮", "😲", "🤯"},
		compileAll(`\bcan'?t believe\b`, `\bno way\b`)},
	{domain.EmotionDisgust,
		[]string{"disgusting", "gross", "revolting", "sickening", "nasty"},
		[]string{"🤢", "🤮"},
		nil},
	{domain.EmotionLove,
		[]string{"love", "adore", "cherish", "devoted"},
		[]string{"❤️", "😍", "🥰", "💕"},
		compileAll(`\bi love\b`, `\bin love with\b`)},
	{domain.EmotionAnxiety,
		[]string{"anxious", "nervous", "worried", "uneasy", "overwhelmed", "panicking"},
		[]string{"😰", "😟"},
		compileAll(`\bcan'?t stop (?:worrying|thinking about)\b`, `\bwhat if\b.*\bwhat if\b`)},
	{domain.EmotionExcitement,
		[]string{"excited", "thrilled", "pumped", "stoked", "ecstatic"},
		[]string{"🎉", "🤩", "🔥"},
		compileAll(`\bcan'?t wait\b`, `\bso excited\b`)},
	{domain.EmotionFrustration,
		[]string{"frustrated", "annoyed", "irritated", "fed up", "stuck"},
		[]string{"😤", "😩"},
		compileAll(`\bnothing (?:works|is working)\b`, `\bfed up with\b`, `\bkeep(?:s)? failing\b`)},
	{domain.EmotionContentment,
		[]string{"content", "calm", "peaceful", "relaxed", "satisfied", "fine"},
		[]string{"😌"},
		compileAll(`\bat peace\b`, `\bpretty good\b`)},
	{domain.EmotionLoneliness,
		[]string{"lonely", "alone", "isolated", "abandoned", "nobody"},
		[]string{"🥺"},
		compileAll(`\bno one (?:to talk to|understands|cares)\b`, `\bby myself\b`)},
}

var intensifierRe = regexp.MustCompile(`\b(very|so|really|extremely|incredibly|absolutely|totally)\b|!{2,}`)

// EmotionVerdict es el resultado de un pase de deteccion.
type EmotionVerdict struct {
	Emotion    string
	Confidence float64
	Intensity  string
	Indicators []string
}

// DetectEmotionLexical puntua cada etiqueta por palabras, emojis y
// patrones; gana la de mayor score. Determinista.
func DetectEmotionLexical(message string) (EmotionVerdict, bool) {
	lower := strings.ToLower(message)
	var best EmotionVerdict
	bestScore := 0.0
	for _, lex := range emotionLexicons {
		score := 0.0
		var indicators []string
		for _, w := range lex.words {
			if strings.Contains(lower, w) {
				score += 0.3
				indicators = append(indicators, w)
			}
		}
		for _, e := range lex.emojis {
			if strings.Contains(message, e) {
				score += 0.4
				indicators = append(indicators, e)
			}
		}
		for _, re := range lex.patterns {
			if re.MatchString(lower) {
				score += 0.5
				indicators = append(indicators, re.FindString(lower))
			}
		}
		if score > bestScore {
			bestScore = score
			best = EmotionVerdict{
				Emotion:    lex.emotion,
				Confidence: clamp01(score),
				Indicators: indicators,
			}
		}
	}
	if bestScore == 0 {
		return EmotionVerdict{}, false
	}
	best.Intensity = intensityFor(lower, best.Confidence)
	return best, true
}

func intensityFor(lower string, confidence float64) string {
	boosted := confidence
	if intensifierRe.MatchString(lower) {
		boosted += 0.2
	}
	switch {
	case boosted >= 0.8:
		return domain.IntensityHigh
	case boosted >= 0.45:
		return domain.IntensityMedium
	default:
		return domain.IntensityLow
	}
}

const emotionPrompt = `Identify the dominant emotion in this message. Pick ONE:
joy, sadness, anger, fear, surprise, disgust, love, anxiety, excitement,
frustration, contentment, loneliness — or "none" if no emotion is present.

Respond ONLY a JSON object:
{"emotion": "<label or none>", "confidence": 0.0, "intensity": "low|medium|high"}

Message: %q
`

type emotionLLMVerdict struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Intensity  string  `json:"intensity"`
}

// EmotionService registra emociones por turno y calcula tendencia.
type EmotionService struct {
	logger    *zap.Logger
	records   repository.EmotionRepository
	generator llm.Generator
	model     string
}

func NewEmotionService(logger *zap.Logger, records repository.EmotionRepository, generator llm.Generator, model string) *EmotionService {
	return &EmotionService{logger: logger, records: records, generator: generator, model: model}
}

// Detect corre el pase lexico; si la confianza queda corta y hay generator,
// escala al LLM. Devuelve ok=false cuando el turno no trae emocion.
func (s *EmotionService) Detect(ctx context.Context, message string) (EmotionVerdict, bool) {
	verdict, ok := DetectEmotionLexical(message)
	if ok && verdict.Confidence >= 0.6 {
		return verdict, true
	}
	if s.generator == nil || len(strings.Fields(message)) < 4 {
		return verdict, ok
	}

	raw, err := s.generator.Generate(ctx, fmt.Sprintf(emotionPrompt, message), llm.Options{
		Model:       s.model,
		Temperature: 0.1,
		MaxTokens:   80,
	})
	if err != nil {
		return verdict, ok
	}
	payload := extractFirstJSONObject(raw)
	if payload == "" {
		return verdict, ok
	}
	var out emotionLLMVerdict
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return verdict, ok
	}
	out.Emotion = strings.ToLower(strings.TrimSpace(out.Emotion))
	if out.Emotion == "none" || out.Emotion == "" || !validEmotion(out.Emotion) {
		return verdict, ok
	}
	if out.Confidence <= verdict.Confidence {
		return verdict, ok
	}
	intensity := out.Intensity
	if intensity != domain.IntensityLow && intensity != domain.IntensityMedium && intensity != domain.IntensityHigh {
		intensity = domain.IntensityMedium
	}
	return EmotionVerdict{
		Emotion:    out.Emotion,
		Confidence: clamp01(out.Confidence),
		Intensity:  intensity,
	}, true
}

// Record persiste el registro append-only, recortando el snippet.
func (s *EmotionService) Record(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, message string, verdict EmotionVerdict) error {
	snippet := message
	if len(snippet) > 100 {
		snippet = snippet[:100]
	}
	return s.records.Append(ctx, domain.EmotionRecord{
		ID:             uuid.New(),
		UserID:         userID,
		ConversationID: conversationID,
		Emotion:        verdict.Emotion,
		Confidence:     verdict.Confidence,
		Intensity:      verdict.Intensity,
		Indicators:     verdict.Indicators,
		Snippet:        snippet,
		DetectedAt:     time.Now().UTC(),
	})
}

// History devuelve los registros de la ventana pedida, mas reciente primero.
func (s *EmotionService) History(ctx context.Context, userID uuid.UUID, window time.Duration, limit int) ([]domain.EmotionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	since := time.Now().UTC().Add(-window)
	return s.records.ListRecent(ctx, userID, since, limit)
}

// Trend compara la valencia media de la mitad reciente contra la vieja.
func (s *EmotionService) Trend(ctx context.Context, userID uuid.UUID, window time.Duration) (string, error) {
	records, err := s.History(ctx, userID, window, 100)
	if err != nil {
		return "", err
	}
	return ComputeTrend(records), nil
}

var emotionValence = map[string]float64{
	domain.EmotionJoy:         1.0,
	domain.EmotionExcitement:  0.9,
	domain.EmotionLove:        0.9,
	domain.EmotionContentment: 0.7,
	domain.EmotionSurprise:    0.1,
	domain.EmotionSadness:     -0.8,
	domain.EmotionAnger:       -0.7,
	domain.EmotionFear:        -0.7,
	domain.EmotionDisgust:     -0.6,
	domain.EmotionAnxiety:     -0.7,
	domain.EmotionFrustration: -0.6,
	domain.EmotionLoneliness:  -0.9,
}

// ComputeTrend es pura: registros ordenados de mas reciente a mas viejo.
func ComputeTrend(records []domain.EmotionRecord) string {
	if len(records) < 4 {
		return domain.TrendStable
	}
	half := len(records) / 2
	recent := meanValence(records[:half])
	older := meanValence(records[half:])
	switch {
	case recent-older > 0.2:
		return domain.TrendImproving
	case older-recent > 0.2:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

func meanValence(records []domain.EmotionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range records {
		total += emotionValence[r.Emotion]
	}
	return total / float64(len(records))
}

func validEmotion(label string) bool {
	for _, e := range domain.EmotionLabels {
		if e == label {
			return true
		}
	}
	return false
}
