package engine

import (
	"strconv"
	"strings"

	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/adapter"
)

// PromptBuilder assembles the message list for the optional generative mode.
type PromptBuilder struct {
	src Source
}

func NewPromptBuilder(src Source) *PromptBuilder {
	return &PromptBuilder{src: src}
}

// Build returns system instructions, the trailing history window and the
// utterance. history must already exclude ignored messages.
func (b *PromptBuilder) Build(history []model.Message, text string, cls model.Classification, empathy int, scenario string) []adapter.Message {
	p := b.src.Current()
	cfg := p.Prompt

	var sys strings.Builder
	sys.WriteString(p.SystemPrompt)
	if s := strings.TrimSpace(scenario); s != "" && cfg.ScenarioTemplate != "" {
		sys.WriteString("\n\n")
		sys.WriteString(strings.ReplaceAll(cfg.ScenarioTemplate, "{scenario}", s))
	}
	sys.WriteString("\n\n")
	sys.WriteString(b.EmpathyInstruction(empathy))
	sys.WriteString("\nУровень эмпатии: " + strconv.Itoa(empathy) + "%")
	sys.WriteString("\nЭмоциональное состояние собеседника: " + string(cls.Emotion))

	window := model.Tail(history, cfg.HistoryWindow)
	out := make([]adapter.Message, 0, len(window)+2)
	out = append(out, adapter.Message{Role: "system", Content: sys.String()})
	for _, m := range window {
		out = append(out, adapter.Message{Role: string(m.Role), Content: m.Text})
	}
	out = append(out, adapter.Message{Role: "user", Content: text})
	return out
}

// EmpathyInstruction maps a level to its tone instruction.
func (b *PromptBuilder) EmpathyInstruction(empathy int) string {
	p := b.src.Current()
	switch {
	case empathy >= p.Empathy.WarmThreshold:
		return p.Prompt.HighEmpathy
	case empathy >= p.Prompt.ModerateFrom:
		return p.Prompt.ModerateEmpathy
	default:
		return p.Prompt.ReservedEmpathy
	}
}
