package service

import (
	"regexp"

	"companion-llm/internal/domain"
)

// Capa L2: reglas hard-stop. Un match corta el cascade con confianza 1.0.

var minorRiskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(teen|teenager|teenage)\b`),
	regexp.MustCompile(`\b(minor|underage|under age|jailbait)\b`),
	regexp.MustCompile(`\b(child|children|kid|kids|toddler|preteen|pre-teen)\b.{0,40}\b(sex|sexual|nude|naked|touch)\b`),
	regexp.MustCompile(`\b(sex|sexual|nude|naked)\b.{0,40}\b(child|children|kid|kids|minor)\b`),
	regexp.MustCompile(`\b(1[0-7]|[1-9])[ -]?(years? old|yo)\b.{0,40}\b(sex|sexual|nude|date|body)\b`),
	regexp.MustCompile(`\b(schoolgirl|schoolboy|loli|shota)\b`),
}

var nonconsentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(rape|raping|raped)\b`),
	regexp.MustCompile(`\bnon[- ]?consensual\b`),
	regexp.MustCompile(`\b(force|forcing|forced)\b.{0,30}\b(sex|her|him|them)\b`),
	regexp.MustCompile(`\b(against (her|his|their) will)\b`),
	regexp.MustCompile(`\b(drug(ged)?|unconscious|sleeping)\b.{0,30}\b(sex|touch|use)\b`),
	regexp.MustCompile(`\bshe (said|says) no\b`),
}

// applyHardStopRules evalua los regex de riesgo de menores y de no
// consentimiento sobre texto ya normalizado.
func applyHardStopRules(normalized string) (domain.LayerResult, bool) {
	for _, re := range minorRiskPatterns {
		if re.MatchString(normalized) {
			return domain.LayerResult{
				Layer:      "L2",
				Label:      domain.LabelMinorRisk,
				Confidence: 1.0,
				Terminal:   true,
				Detail:     "age-indicating token",
			}, true
		}
	}
	for _, re := range nonconsentPatterns {
		if re.MatchString(normalized) {
			return domain.LayerResult{
				Layer:      "L2",
				Label:      domain.LabelNonconsensual,
				Confidence: 1.0,
				Terminal:   true,
				Detail:     "coercion term",
			}, true
		}
	}
	return domain.LayerResult{Layer: "L2", Detail: "no match"}, false
}
