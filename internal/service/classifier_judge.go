package service

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
)

// Capa L4: juez LLM. Solo se invoca en casos ambiguos y nunca se reintenta
// para mantener la latencia acotada.

const judgePromptTemplate = `You are a strict content-safety classifier for a conversational AI.
Classify the user message into exactly one label:
SAFE, SUGGESTIVE, EXPLICIT_CONSENSUAL_ADULT, FETISH, MINOR_RISK, NONCONSENSUAL.

Rules:
- MINOR_RISK whenever any participant could be under 18.
- NONCONSENSUAL whenever consent is absent, coerced or impossible.
- When in doubt between two labels, pick the higher-risk one.

Respond ONLY a JSON object with this exact shape:
{"label": "<label>", "confidence": 0.0, "reasoning": "<short>"}

Message: %q
`

type judgeVerdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// JudgeClient invoca al clasificador upstream con temperatura y tokens
// acotados y parsea la salida estructurada.
type JudgeClient struct {
	generator llm.Generator
	model     string
	cache     *judgeCache
}

func NewJudgeClient(generator llm.Generator, model string, cacheSize int) *JudgeClient {
	return &JudgeClient{
		generator: generator,
		model:     model,
		cache:     newJudgeCache(cacheSize),
	}
}

func (j *JudgeClient) Judge(ctx context.Context, normalized string) (domain.LayerResult, error) {
	if cached, ok := j.cache.get(normalized); ok {
		cached.Detail = "cache hit"
		return cached, nil
	}

	raw, err := j.generator.Generate(ctx, fmt.Sprintf(judgePromptTemplate, normalized), llm.Options{
		Model:       j.model,
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return domain.LayerResult{Layer: "L4", Detail: "judge unavailable"}, err
	}

	payload := extractFirstJSONObject(raw)
	if payload == "" {
		return domain.LayerResult{Layer: "L4", Detail: "unparseable verdict"}, fmt.Errorf("judge verdict not json")
	}
	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return domain.LayerResult{Layer: "L4", Detail: "unparseable verdict"}, err
	}
	verdict.Label = strings.ToUpper(strings.TrimSpace(verdict.Label))
	if !validJudgeLabel(verdict.Label) {
		return domain.LayerResult{Layer: "L4", Detail: "unknown label " + verdict.Label}, fmt.Errorf("judge label invalid")
	}

	result := domain.LayerResult{
		Layer:      "L4",
		Label:      verdict.Label,
		Confidence: clamp01(verdict.Confidence),
		Detail:     verdict.Reasoning,
	}
	j.cache.put(normalized, result)
	return result, nil
}

func validJudgeLabel(label string) bool {
	switch label {
	case domain.LabelSafe, domain.LabelSuggestive, domain.LabelExplicit,
		domain.LabelFetish, domain.LabelMinorRisk, domain.LabelNonconsensual:
		return true
	}
	return false
}

// judgeCache es un LRU acotado por replica, keyed por texto normalizado.
type judgeCache struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
}

type judgeCacheEntry struct {
	key    string
	result domain.LayerResult
}

func newJudgeCache(max int) *judgeCache {
	if max <= 0 {
		max = 1024
	}
	return &judgeCache{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *judgeCache) get(key string) (domain.LayerResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return domain.LayerResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(judgeCacheEntry).result, true
}

func (c *judgeCache) put(key string, result domain.LayerResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value = judgeCacheEntry{key: key, result: result}
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(judgeCacheEntry{key: key, result: result})
	if c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(judgeCacheEntry).key)
	}
}
