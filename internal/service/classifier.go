package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/repository"
)

// ContentClassifier corre el cascade de cuatro capas y deja registro de
// auditoria de cada resultado.
type ContentClassifier struct {
	logger    *zap.Logger
	judge     *JudgeClient
	audit     repository.AuditRepository
	threshold float64 // tau: bajo este valor de confianza L3, escala a L4
}

func NewContentClassifier(logger *zap.Logger, judge *JudgeClient, audit repository.AuditRepository, threshold float64) *ContentClassifier {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &ContentClassifier{
		logger:    logger,
		judge:     judge,
		audit:     audit,
		threshold: threshold,
	}
}

// Classify produce etiqueta + confianza. El orden de capas es fijo:
// L1 normaliza, L2 puede cortar, L3 puntua, L4 opcionalmente ajusta.
func (c *ContentClassifier) Classify(ctx context.Context, requestID string, userID uuid.UUID, text string) domain.Classification {
	normalized := NormalizeText(text)
	layers := []domain.LayerResult{{Layer: "L1", Detail: "normalized"}}

	if hard, matched := applyHardStopRules(normalized); matched {
		layers = append(layers, hard)
		result := domain.Classification{
			Label:      hard.Label,
			Confidence: hard.Confidence,
			Reasoning:  hard.Detail,
			Layers:     layers,
		}
		c.writeAudit(ctx, requestID, userID, normalized, result)
		return result
	}

	l3, scores := scorePatterns(normalized)
	layers = append(layers, l3)

	result := domain.Classification{
		Label:      l3.Label,
		Confidence: l3.Confidence,
		Reasoning:  "pattern scorer",
		Layers:     layers,
	}

	if c.judge != nil && needsJudge(l3, scores, c.threshold) {
		l4, err := c.judge.Judge(ctx, normalized)
		if err != nil {
			// El juez es opcional: ante falla nos quedamos con L3.
			c.logger.Warn("judge failed", zap.Error(err), zap.String("request_id", requestID))
			layers = append(layers, domain.LayerResult{Layer: "L4", Detail: "unavailable"})
			result.Layers = layers
		} else {
			layers = append(layers, l4)
			result = blendVerdicts(l3, l4)
			result.Layers = layers
		}
	}

	c.writeAudit(ctx, requestID, userID, normalized, result)
	return result
}

// blendVerdicts es la mezcla determinista de L3 y L4.
func blendVerdicts(l3, l4 domain.LayerResult) domain.Classification {
	switch {
	case l4.Confidence >= 0.85:
		return domain.Classification{Label: l4.Label, Confidence: l4.Confidence, Reasoning: "judge adopted: " + l4.Detail}
	case l4.Label == l3.Label:
		conf := l3.Confidence + 0.2
		if conf > 1.0 {
			conf = 1.0
		}
		return domain.Classification{Label: l3.Label, Confidence: conf, Reasoning: "judge agreed"}
	case domain.RiskLevel(l4.Label) > domain.RiskLevel(l3.Label):
		// Safety-first: el juez gana si ve mas riesgo.
		return domain.Classification{Label: l4.Label, Confidence: l4.Confidence, Reasoning: "judge escalated: " + l4.Detail}
	default:
		return domain.Classification{Label: l3.Label, Confidence: l3.Confidence, Reasoning: "pattern scorer kept"}
	}
}

func (c *ContentClassifier) writeAudit(ctx context.Context, requestID string, userID uuid.UUID, normalized string, result domain.Classification) {
	if c.audit == nil {
		return
	}
	sum := sha256.Sum256([]byte(normalized))
	entry := repository.AuditEntry{
		ID:         uuid.New(),
		RequestID:  requestID,
		UserID:     userID,
		TextHash:   hex.EncodeToString(sum[:]),
		Label:      result.Label,
		Confidence: result.Confidence,
		Layers:     result.Layers,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		c.logger.Warn("audit append failed", zap.Error(err), zap.String("request_id", requestID))
	}
}
