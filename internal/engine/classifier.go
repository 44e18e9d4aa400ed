package engine

import (
	"strings"

	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/persona"
)

// Classifier maps an utterance to its tag set by keyword membership. It is
// total: any string, including empty or non-ASCII input, yields a result.
type Classifier struct {
	src Source
}

func NewClassifier(src Source) *Classifier {
	return &Classifier{src: src}
}

// Classify tags text. Axes are independent; within an axis the first
// matching group wins. Emotion and urgency may both be set by one message.
func (c *Classifier) Classify(text string) model.Classification {
	res := model.NeutralClassification()
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return res
	}
	p := c.src.Current()
	v := p.Vocabulary

	switch {
	case persona.ContainsAny(lowered, v.Positive):
		res.Emotion = model.EmotionPositive
	case persona.ContainsAny(lowered, v.Negative):
		res.Emotion = model.EmotionNegative
	}

	if persona.ContainsAny(lowered, v.Urgent) {
		res.Urgency = model.UrgencyHigh
	}

	switch {
	case persona.ContainsAny(lowered, v.Forget):
		res.Intent = model.IntentForget
	case persona.ContainsAny(lowered, v.Help):
		res.Intent = model.IntentHelp
	case persona.ContainsAny(lowered, v.Explain):
		res.Intent = model.IntentExplain
	}

	switch {
	case persona.ContainsAny(lowered, v.Polite):
		res.Tone = model.TonePolite
	case persona.ContainsAny(lowered, v.Aggressive):
		res.Tone = model.ToneAggressive
	}

	for _, cat := range model.Categories {
		if persona.ContainsAny(lowered, v.CategoryKeywords(cat)) {
			res.Category = cat
			break
		}
	}

	if s, ok := p.Situation(lowered); ok {
		res.Situation = s.Name
	}
	return res
}
