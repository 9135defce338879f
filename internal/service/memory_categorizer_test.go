package service

import (
	"context"
	"strings"
	"testing"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
)

func TestCategorizeByPattern(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"Always call me Captain", domain.CategoryInstruction},
		{"My favorite food is ramen", domain.CategoryPreference},
		{"I want to run a marathon next year", domain.CategoryGoal},
		{"My sister lives in Madrid", domain.CategoryRelationship},
		{"I graduated from law school", domain.CategoryAchievement},
		{"I'm struggling with my workload", domain.CategoryChallenge},
		{"Yesterday I visited the museum", domain.CategoryEvent},
		{"My name is Lucia", domain.CategoryPersonalFact},
		{"I learned that octopuses have three hearts", domain.CategoryKnowledge},
		{"whatever happened happened", domain.CategoryContext},
	}
	for _, tc := range cases {
		if got := CategorizeByPattern(tc.content); got != tc.want {
			t.Fatalf("CategorizeByPattern(%q) = %s, want %s", tc.content, got, tc.want)
		}
	}
}

func TestCategorizeByPatternDeterministic(t *testing.T) {
	content := "I want to learn Italian"
	first := CategorizeByPattern(content)
	for i := 0; i < 10; i++ {
		if got := CategorizeByPattern(content); got != first {
			t.Fatalf("categorization not deterministic: %s vs %s", got, first)
		}
	}
}

func TestCategorizerHybridHighConfidenceWins(t *testing.T) {
	gen := &llm.MockGenerator{Response: `{"category":"relationship","confidence":0.9,"reasoning":"mentions family"}`}
	c := NewCategorizer(gen, "utility")

	got := c.Categorize(context.Background(), "my favorite person is my brother")
	if got != domain.CategoryRelationship {
		t.Fatalf("high-confidence llm verdict should win, got %s", got)
	}
}

func TestCategorizerHybridLowConfidenceFallsBack(t *testing.T) {
	gen := &llm.MockGenerator{Response: `{"category":"relationship","confidence":0.4,"reasoning":"unsure"}`}
	c := NewCategorizer(gen, "utility")

	got := c.Categorize(context.Background(), "My favorite food is ramen")
	if got != domain.CategoryPreference {
		t.Fatalf("low-confidence verdict must fall back to pattern, got %s", got)
	}
}

func TestCategorizerInvalidOutputFallsBack(t *testing.T) {
	gen := &llm.MockGenerator{Response: "I think this is about food"}
	c := NewCategorizer(gen, "utility")

	got := c.Categorize(context.Background(), "My favorite food is ramen")
	if got != domain.CategoryPreference {
		t.Fatalf("unparseable verdict must fall back to pattern, got %s", got)
	}
}

func TestExtractEntities(t *testing.T) {
	entities := ExtractEntities("Yesterday I met Maria in Barcelona to talk about photography")
	if !containsFold(entities.People, "Maria") {
		t.Fatalf("people = %v, want Maria", entities.People)
	}
	if !containsFold(entities.Places, "Barcelona") {
		t.Fatalf("places = %v, want Barcelona", entities.Places)
	}
	if !containsFold(entities.Topics, "photography") {
		t.Fatalf("topics = %v, want photography", entities.Topics)
	}
	if !containsFold(entities.Dates, "yesterday") {
		t.Fatalf("dates = %v, want yesterday", entities.Dates)
	}
}

func TestExtractEntitiesRelatives(t *testing.T) {
	entities := ExtractEntities("my sister is coming over")
	if !containsFold(entities.People, "my sister") {
		t.Fatalf("people = %v, want relative mention", entities.People)
	}
}

func TestMergeEntitiesDeduplicates(t *testing.T) {
	a := domain.RelatedEntities{People: []string{"Maria"}, Topics: []string{"cooking"}}
	b := domain.RelatedEntities{People: []string{"maria", "Jorge"}, Dates: []string{"today"}}

	merged := MergeEntities(a, b)
	if len(merged.People) != 2 {
		t.Fatalf("people after merge = %v, want 2 unique", merged.People)
	}
	if len(merged.Topics) != 1 || len(merged.Dates) != 1 {
		t.Fatalf("merge lost fields: %+v", merged)
	}
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}
