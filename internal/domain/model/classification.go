package model

type Emotion string

const (
	EmotionPositive Emotion = "positive"
	EmotionNegative Emotion = "negative"
	EmotionNeutral  Emotion = "neutral"
)

type Intent string

const (
	IntentForget  Intent = "forget"
	IntentHelp    Intent = "help"
	IntentExplain Intent = "explain"
	IntentGeneral Intent = "general"
)

type Urgency string

const (
	UrgencyLow  Urgency = "low"
	UrgencyHigh Urgency = "high"
)

type Tone string

const (
	TonePolite     Tone = "polite"
	ToneAggressive Tone = "aggressive"
	ToneNeutral    Tone = "neutral"
)

// Category names one of the response pools a reply is drawn from.
type Category string

const (
	CategoryGreeting  Category = "greeting"
	CategoryFarewell  Category = "farewell"
	CategoryThanks    Category = "thanks"
	CategoryHelp      Category = "help"
	CategoryComplaint Category = "complaint"
	CategoryQuestion  Category = "question"
	CategoryDefault   Category = "default"
)

// Categories lists the pools in the order they are tested against text.
var Categories = []Category{
	CategoryGreeting,
	CategoryFarewell,
	CategoryThanks,
	CategoryHelp,
	CategoryComplaint,
	CategoryQuestion,
	CategoryDefault,
}

// Classification is the per-utterance tag set. It is stored on every message
// as an audit snapshot together with the empathy level in effect at send time.
type Classification struct {
	Emotion   Emotion  `json:"emotion"`
	Intent    Intent   `json:"intent"`
	Urgency   Urgency  `json:"urgency"`
	Tone      Tone     `json:"tone"`
	Category  Category `json:"category"`
	Situation string   `json:"situation,omitempty"`
	Empathy   int      `json:"empathy_level"`
}

// NeutralClassification is the result for text that matches nothing.
func NeutralClassification() Classification {
	return Classification{
		Emotion:  EmotionNeutral,
		Intent:   IntentGeneral,
		Urgency:  UrgencyLow,
		Tone:     ToneNeutral,
		Category: CategoryDefault,
	}
}
