package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
)

// Categorizacion de memorias: pase rapido por patrones, con modo hibrido
// que consulta primero al LLM y cae al patron si la confianza es baja.

type categoryPattern struct {
	category string
	patterns []*regexp.Regexp
}

var categoryPatterns = []categoryPattern{
	{domain.CategoryInstruction, compileAll(
		`\b(always|never|don't|do not|remember to|make sure)\b.*\b(call me|respond|answer|use|say)\b`,
		`\bcall me\b`,
	)},
	{domain.CategoryPreference, compileAll(
		`\b(favorite|favourite)\b`,
		`\bi (love|like|enjoy|prefer|hate|dislike|can't stand)\b`,
	)},
	{domain.CategoryGoal, compileAll(
		`\bi (want to|plan to|aim to|hope to|intend to|am going to)\b`,
		`\bmy goal\b`, `\bi'm (learning|training|studying|saving) (to|for)\b`,
	)},
	{domain.CategoryRelationship, compileAll(
		`\bmy (wife|husband|partner|girlfriend|boyfriend|mother|father|mom|dad|sister|brother|son|daughter|friend|boss|colleague)\b`,
	)},
	{domain.CategoryAchievement, compileAll(
		`\bi (finished|completed|achieved|won|got promoted|graduated|passed)\b`,
		`\bfinally (did|made|finished)\b`,
	)},
	{domain.CategoryChallenge, compileAll(
		`\bi('m| am) (struggling|stressed|worried|anxious|stuck)\b`,
		`\b(problem|difficult|hard time|challenge) (with|at|for)\b`,
	)},
	{domain.CategoryEvent, compileAll(
		`\b(yesterday|today|tomorrow|last (week|month|year)|next (week|month|year)|on (monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`,
		`\bi (went|visited|attended|traveled|moved)\b`,
	)},
	{domain.CategoryPersonalFact, compileAll(
		`\bmy name is\b`, `\bi (live|work|was born|grew up) (in|at)\b`,
		`\bi('m| am) (a|an) [a-z]+(er|ist|or|ian)\b`, `\bi('m| am) \d+ years old\b`,
	)},
	{domain.CategoryKnowledge, compileAll(
		`\bi (know|learned|read|heard) (that|about)\b`,
	)},
	{domain.CategoryFact, compileAll(
		`\b(is|are|was|were) (a|an|the)\b`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// CategorizeByPattern devuelve la primera categoria cuyo patron matchea;
// context como fallback. Determinista: texto identico, categoria identica.
func CategorizeByPattern(content string) string {
	lower := strings.ToLower(content)
	for _, cp := range categoryPatterns {
		for _, re := range cp.patterns {
			if re.MatchString(lower) {
				return cp.category
			}
		}
	}
	return domain.CategoryContext
}

const categorizePrompt = `Classify this memory snippet into one category:
personal_fact, preference, goal, event, relationship, challenge, achievement,
knowledge, instruction, fact, context.

Respond ONLY a JSON object: {"category": "<c>", "confidence": 0.0, "reasoning": "<short>"}

Snippet: %q
`

type categoryVerdict struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Categorizer resuelve la categoria; con generator configurado opera en
// modo hibrido.
type Categorizer struct {
	generator llm.Generator
	model     string
}

func NewCategorizer(generator llm.Generator, model string) *Categorizer {
	return &Categorizer{generator: generator, model: model}
}

func (c *Categorizer) Categorize(ctx context.Context, content string) string {
	patternResult := CategorizeByPattern(content)
	if c.generator == nil {
		return patternResult
	}

	raw, err := c.generator.Generate(ctx, fmt.Sprintf(categorizePrompt, content), llm.Options{
		Model:       c.model,
		Temperature: 0.1,
		MaxTokens:   120,
	})
	if err != nil {
		return patternResult
	}
	payload := extractFirstJSONObject(raw)
	if payload == "" {
		return patternResult
	}
	var verdict categoryVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return patternResult
	}
	verdict.Category = strings.ToLower(strings.TrimSpace(verdict.Category))
	// Bajo 0.6 de confianza el patron gana.
	if verdict.Confidence < 0.6 || !validCategory(verdict.Category) {
		return patternResult
	}
	return verdict.Category
}

func validCategory(category string) bool {
	for _, c := range domain.MemoryCategories {
		if c == category {
			return true
		}
	}
	return false
}
