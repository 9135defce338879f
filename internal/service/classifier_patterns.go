package service

import (
	"fmt"
	"strings"

	"companion-llm/internal/domain"
)

// Capa L3: scoring ponderado por grupos de señal. El vocabulario exacto es
// tuneable; las pruebas fijan el orden de etiquetas, no los scores.

type patternGroup struct {
	name     string
	weight   float64
	patterns map[string]float64
}

var l3Groups = []patternGroup{
	{
		name:   "anatomy",
		weight: 0.9,
		patterns: map[string]float64{
			"genitals": 1.0, "penis": 1.0, "vagina": 1.0, "breasts": 0.8,
			"nipples": 0.9, "crotch": 0.8, "naked body": 0.9,
		},
	},
	{
		name:   "acts",
		weight: 1.0,
		patterns: map[string]float64{
			"sex": 0.7, "intercourse": 0.9, "oral sex": 1.0, "masturbat": 1.0,
			"orgasm": 0.9, "penetrat": 0.9, "make love": 0.7, "blowjob": 1.0,
			"hookup": 0.5,
		},
	},
	{
		name:   "fetish",
		weight: 1.0,
		patterns: map[string]float64{
			"bdsm": 1.0, "bondage": 1.0, "dominatrix": 1.0, "submissive": 0.7,
			"fetish": 0.9, "kink": 0.8, "latex": 0.6, "spanking": 0.8,
			"roleplay as my": 0.5,
		},
	},
	{
		name:   "suggestive",
		weight: 0.5,
		patterns: map[string]float64{
			"sexy": 0.7, "seduce": 0.8, "flirt": 0.5, "lingerie": 0.7,
			"turn me on": 0.8, "undress": 0.8, "make out": 0.6, "in bed with": 0.6,
			"romantic night": 0.4, "kiss you": 0.5,
		},
	},
}

type patternScores struct {
	anatomy    float64
	acts       float64
	fetish     float64
	suggestive float64
	signals    int
}

// scorePatterns acumula por grupo y deriva etiqueta preliminar + confianza.
func scorePatterns(normalized string) (domain.LayerResult, patternScores) {
	var scores patternScores
	for _, group := range l3Groups {
		var total float64
		for phrase, w := range group.patterns {
			if strings.Contains(normalized, phrase) {
				total += w
				scores.signals++
			}
		}
		total *= group.weight
		if total > 1.0 {
			total = 1.0
		}
		switch group.name {
		case "anatomy":
			scores.anatomy = total
		case "acts":
			scores.acts = total
		case "fetish":
			scores.fetish = total
		case "suggestive":
			scores.suggestive = total
		}
	}

	label, confidence := preliminaryLabel(scores)
	return domain.LayerResult{
		Layer:      "L3",
		Label:      label,
		Confidence: confidence,
		Detail: fmt.Sprintf("anatomy=%.2f acts=%.2f fetish=%.2f suggestive=%.2f signals=%d",
			scores.anatomy, scores.acts, scores.fetish, scores.suggestive, scores.signals),
	}, scores
}

func preliminaryLabel(s patternScores) (string, float64) {
	explicit := 0.6*s.acts + 0.4*s.anatomy
	switch {
	case s.fetish >= 0.6:
		return domain.LabelFetish, clamp01(0.5 + s.fetish/2)
	case explicit >= 0.5:
		return domain.LabelExplicit, clamp01(0.5 + explicit/2)
	case s.suggestive >= 0.35 || explicit >= 0.25 || s.fetish >= 0.3:
		conf := clamp01(0.4 + (s.suggestive+explicit+s.fetish)/3)
		return domain.LabelSuggestive, conf
	default:
		// Sin señales el texto es SAFE con confianza alta; con señales
		// debiles la confianza cae y habilita al juez L4.
		if s.signals == 0 {
			return domain.LabelSafe, 0.95
		}
		return domain.LabelSafe, 0.6
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// needsJudge decide si el cascade escala a L4: confianza bajo el umbral,
// tres o mas señales heterogeneas, o scores en banda ambigua.
func needsJudge(l3 domain.LayerResult, scores patternScores, threshold float64) bool {
	if l3.Confidence < threshold {
		return true
	}
	if scores.signals >= 3 {
		return true
	}
	explicit := 0.6*scores.acts + 0.4*scores.anatomy
	if explicit >= 0.2 && explicit <= 0.4 {
		return true
	}
	if scores.fetish >= 0.2 && scores.fetish <= 0.5 {
		return true
	}
	return false
}
