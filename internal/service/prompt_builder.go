package service

import (
	"fmt"
	"strings"

	"companion-llm/internal/domain"
)

// Ensamblado del prompt: funcion pura sobre PromptInput. Nueve secciones
// en orden fijo; el recorte por presupuesto nunca toca el bloque de
// requisitos criticos ni el mensaje actual.

const defaultPersona = `You are a thoughtful AI companion. You are attentive, consistent, and you
remember what matters to the people you talk with.`

// PromptInput es todo lo que el ensamblador necesita para un turno.
type PromptInput struct {
	Persona         string
	Personality     *domain.PersonalityProfile
	Preferences     domain.Preferences
	Emotion         *EmotionVerdict
	EmotionTrend    string
	Goals           []domain.Goal
	NewGoals        []GoalCandidate
	ProgressUpdates []string
	Completions     []string
	Memories        []domain.ScoredMemory
	Summary         string
	Buffer          []BufferedMessage
	UserMessage     string
	TokenBudget     int // 0 = sin limite
}

// PromptStats resume la composicion para el evento prompt_built.
type PromptStats struct {
	MemoryCount    int  `json:"memory_count"`
	BufferCount    int  `json:"buffer_count"`
	GoalCount      int  `json:"goal_count"`
	HasSummary     bool `json:"has_summary"`
	HasPreferences bool `json:"has_preferences"`
	HasEmotion     bool `json:"has_emotion"`
	TokenEstimate  int  `json:"token_estimate"`
}

// BuildPrompt arma el prompt completo y sus stats. Si el presupuesto se
// excede recorta en orden: memorias, despues summary, despues los mensajes
// viejos del buffer.
func BuildPrompt(in PromptInput) (string, PromptStats) {
	memories := in.Memories
	summary := in.Summary
	buffer := in.Buffer

	prompt := renderPrompt(in, memories, summary, buffer)
	if in.TokenBudget > 0 {
		for estimateTokens(prompt) > in.TokenBudget && len(memories) > 0 {
			memories = memories[:len(memories)-1]
			prompt = renderPrompt(in, memories, summary, buffer)
		}
		if estimateTokens(prompt) > in.TokenBudget && summary != "" {
			summary = ""
			prompt = renderPrompt(in, memories, summary, buffer)
		}
		for estimateTokens(prompt) > in.TokenBudget && len(buffer) > 1 {
			buffer = buffer[1:]
			prompt = renderPrompt(in, memories, summary, buffer)
		}
	}

	stats := PromptStats{
		MemoryCount:    len(memories),
		BufferCount:    len(buffer),
		GoalCount:      len(in.Goals),
		HasSummary:     summary != "",
		HasPreferences: !in.Preferences.IsEmpty(),
		HasEmotion:     in.Emotion != nil,
		TokenEstimate:  estimateTokens(prompt),
	}
	return prompt, stats
}

func renderPrompt(in PromptInput, memories []domain.ScoredMemory, summary string, buffer []BufferedMessage) string {
	var b strings.Builder

	persona := in.Persona
	if persona == "" {
		persona = defaultPersona
	}
	b.WriteString(persona)
	b.WriteString("\n")

	writePersonalitySection(&b, in.Personality)
	writePreferenceSection(&b, in.Preferences)
	writeEmotionSection(&b, in.Emotion, in.EmotionTrend)
	writeGoalSection(&b, in.Goals, in.NewGoals, in.ProgressUpdates, in.Completions)
	writeMemorySection(&b, memories)

	if summary != "" {
		b.WriteString("\nCONVERSATION SO FAR:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	if len(buffer) > 0 {
		b.WriteString("\nRECENT MESSAGES:\n")
		for _, m := range buffer {
			b.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
		}
	}

	b.WriteString("\nuser: ")
	b.WriteString(in.UserMessage)
	b.WriteString("\nassistant:")
	return b.String()
}

func writePersonalitySection(b *strings.Builder, p *domain.PersonalityProfile) {
	if p == nil {
		return
	}
	b.WriteString(fmt.Sprintf("\nPERSONALITY: %s\n", p.Archetype))
	if p.SpeakingStyle != "" {
		b.WriteString(fmt.Sprintf("Speaking style: %s\n", p.SpeakingStyle))
	}
	b.WriteString(fmt.Sprintf(
		"Traits (0-10): warmth %d, humor %d, formality %d, curiosity %d, empathy %d, assertiveness %d, creativity %d, analytical %d\n",
		p.Traits.Warmth, p.Traits.Humor, p.Traits.Formality, p.Traits.Curiosity,
		p.Traits.Empathy, p.Traits.Assertive, p.Traits.Creativity, p.Traits.Analytical))
	var behaviors []string
	if p.Behaviors.AsksFollowUps {
		behaviors = append(behaviors, "ask follow-up questions")
	}
	if p.Behaviors.UsesExamples {
		behaviors = append(behaviors, "use concrete examples")
	}
	if p.Behaviors.AdmitsUncertain {
		behaviors = append(behaviors, "admit uncertainty")
	}
	if p.Behaviors.ChecksUnderstood {
		behaviors = append(behaviors, "check understanding")
	}
	if p.Behaviors.OffersOpinions {
		behaviors = append(behaviors, "offer opinions when asked")
	}
	if len(behaviors) > 0 {
		b.WriteString("Behaviors: " + strings.Join(behaviors, "; ") + "\n")
	}
	if p.Backstory != "" {
		b.WriteString("Backstory: " + p.Backstory + "\n")
	}
	if p.CustomInstructions != "" {
		b.WriteString("Instructions: " + p.CustomInstructions + "\n")
	}
}

// writePreferenceSection emite el bloque inviolable: una directiva MUST por
// cada dimension no nula.
func writePreferenceSection(b *strings.Builder, prefs domain.Preferences) {
	if prefs.IsEmpty() {
		return
	}
	b.WriteString("\nCRITICAL COMMUNICATION REQUIREMENTS:\n")
	if prefs.Language != nil {
		b.WriteString(fmt.Sprintf("- You MUST respond in %s.\n", *prefs.Language))
	}
	if prefs.Formality != nil {
		b.WriteString(fmt.Sprintf("- You MUST keep a %s register.\n", *prefs.Formality))
	}
	if prefs.Tone != nil {
		b.WriteString(fmt.Sprintf("- You MUST keep a %s tone.\n", *prefs.Tone))
	}
	if prefs.EmojiUsage != nil {
		if *prefs.EmojiUsage {
			b.WriteString("- You MUST include emojis where natural.\n")
		} else {
			b.WriteString("- You MUST NOT use emojis.\n")
		}
	}
	if prefs.ResponseLength != nil {
		switch *prefs.ResponseLength {
		case "brief":
			b.WriteString("- You MUST keep responses brief, at most 3 sentences.\n")
		case "detailed":
			b.WriteString("- You MUST give thorough, detailed responses.\n")
		default:
			b.WriteString("- You MUST keep responses balanced in length.\n")
		}
	}
	if prefs.ExplanationStyle != nil {
		switch *prefs.ExplanationStyle {
		case "simple":
			b.WriteString("- You MUST explain things in simple, everyday terms.\n")
		case "technical":
			b.WriteString("- You MUST explain with full technical depth.\n")
		case "analogies":
			b.WriteString("- You MUST explain using analogies.\n")
		}
	}
	b.WriteString("These requirements override any other style guidance below.\n")
}

func writeEmotionSection(b *strings.Builder, emotion *EmotionVerdict, trend string) {
	if emotion == nil {
		return
	}
	b.WriteString(fmt.Sprintf("\nEMOTIONAL CONTEXT: the user seems to feel %s (%s intensity). Acknowledge it with empathy before anything else.\n",
		emotion.Emotion, emotion.Intensity))
	if trend == domain.TrendDeclining {
		b.WriteString("Their mood has been declining lately; be especially gentle and supportive.\n")
	}
}

func writeGoalSection(b *strings.Builder, goals []domain.Goal, newGoals []GoalCandidate, progressUpdates, completions []string) {
	if len(goals) == 0 && len(newGoals) == 0 && len(progressUpdates) == 0 && len(completions) == 0 {
		return
	}
	b.WriteString("\nUSER GOALS:\n")
	limit := len(goals)
	if limit > 5 {
		limit = 5
	}
	for _, g := range goals[:limit] {
		b.WriteString(fmt.Sprintf("- [%s] %s (%.0f%% progress)\n", g.Category, g.Title, g.Progress))
	}
	for _, g := range newGoals {
		b.WriteString(fmt.Sprintf("- New goal just mentioned: %s. Acknowledge and encourage it.\n", g.Title))
	}
	for _, title := range progressUpdates {
		b.WriteString(fmt.Sprintf("- Progress mentioned on: %s. Acknowledge the effort.\n", title))
	}
	for _, title := range completions {
		b.WriteString(fmt.Sprintf("- Goal completed: %s. Celebrate this achievement!\n", title))
	}
}

func writeMemorySection(b *strings.Builder, memories []domain.ScoredMemory) {
	if len(memories) == 0 {
		return
	}
	b.WriteString("\nWHAT YOU REMEMBER ABOUT THE USER:\n")
	for _, m := range memories {
		b.WriteString(fmt.Sprintf("- [%s][importance≈%.2f] %s\n",
			m.Memory.Category, m.Memory.Importance.Aggregate, m.Memory.Content))
	}
}

// estimateTokens aproxima con la regla de ~4 caracteres por token.
func estimateTokens(s string) int {
	return len(s) / 4
}
