package service

import (
	"regexp"
	"strings"

	"companion-llm/internal/domain"
)

// Extraccion de entidades por regex: nombres, lugares, temas y fechas.

var (
	peopleRe = regexp.MustCompile(`\b(?:my (?:wife|husband|partner|girlfriend|boyfriend|mother|father|mom|dad|sister|brother|son|daughter|friend|boss|colleague)|[A-Z][a-z]{2,})\b`)
	placeRe  = regexp.MustCompile(`\b(?:in|at|from|to|near) ([A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+)?)\b`)
	dateRe   = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}(?:/\d{2,4})?|(?:january|february|march|april|may|june|july|august|september|october|november|december) \d{1,2}(?:st|nd|rd|th)?|yesterday|today|tomorrow|next (?:week|month|year)|last (?:week|month|year))\b`)
	topicRe  = regexp.MustCompile(`\b(?:about|on|regarding|into) ([a-z]+(?: [a-z]+)?)\b`)
)

// Palabras capitalizadas que no son nombres propios en posicion inicial.
var entityStopwords = map[string]bool{
	"I": true, "The": true, "My": true, "This": true, "That": true,
	"Yes": true, "And": true, "But": true, "When": true, "What": true,
}

// ExtractEntities llena related_entities a partir del contenido.
func ExtractEntities(content string) domain.RelatedEntities {
	var entities domain.RelatedEntities

	for _, m := range peopleRe.FindAllString(content, -1) {
		if entityStopwords[m] {
			continue
		}
		entities.People = appendUnique(entities.People, m)
	}
	for _, m := range placeRe.FindAllStringSubmatch(content, -1) {
		entities.Places = appendUnique(entities.Places, m[1])
	}
	lower := strings.ToLower(content)
	for _, m := range dateRe.FindAllString(lower, -1) {
		entities.Dates = appendUnique(entities.Dates, m)
	}
	for _, m := range topicRe.FindAllStringSubmatch(lower, -1) {
		entities.Topics = appendUnique(entities.Topics, m[1])
	}
	return entities
}

// MergeEntities une dos conjuntos sin duplicar.
func MergeEntities(a, b domain.RelatedEntities) domain.RelatedEntities {
	out := a
	for _, p := range b.People {
		out.People = appendUnique(out.People, p)
	}
	for _, p := range b.Places {
		out.Places = appendUnique(out.Places, p)
	}
	for _, t := range b.Topics {
		out.Topics = appendUnique(out.Topics, t)
	}
	for _, d := range b.Dates {
		out.Dates = appendUnique(out.Dates, d)
	}
	return out
}

func appendUnique(list []string, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, item) {
			return list
		}
	}
	return append(list, item)
}

// entityCount devuelve el total de entidades capturadas.
func entityCount(e domain.RelatedEntities) int {
	return len(e.People) + len(e.Places) + len(e.Topics) + len(e.Dates)
}
