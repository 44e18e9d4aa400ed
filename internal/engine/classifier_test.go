package engine

import (
	"testing"

	"odanna-bot/internal/domain/model"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(defaultSource())
	tests := []struct {
		name string
		text string
		want model.Classification
	}{
		{"empty", "", model.NeutralClassification()},
		{"whitespace", " \t\n ", model.NeutralClassification()},
		{"emoji only", "😀🎌", model.NeutralClassification()},
		{
			name: "thanks positive",
			text: "Спасибо, все отлично!",
			want: model.Classification{Emotion: model.EmotionPositive, Intent: model.IntentGeneral, Urgency: model.UrgencyLow, Tone: model.ToneNeutral, Category: model.CategoryThanks},
		},
		{
			name: "urgent negative help",
			text: "Срочно помоги, мне плохо",
			want: model.Classification{Emotion: model.EmotionNegative, Intent: model.IntentHelp, Urgency: model.UrgencyHigh, Tone: model.ToneNeutral, Category: model.CategoryHelp},
		},
		{
			name: "polite before aggressive",
			text: "Пожалуйста, иди отсюда",
			want: model.Classification{Emotion: model.EmotionNeutral, Intent: model.IntentGeneral, Urgency: model.UrgencyLow, Tone: model.TonePolite, Category: model.CategoryDefault},
		},
		{
			name: "aggressive",
			text: "Убирайся",
			want: model.Classification{Emotion: model.EmotionNeutral, Intent: model.IntentGeneral, Urgency: model.UrgencyLow, Tone: model.ToneAggressive, Category: model.CategoryDefault},
		},
		{
			name: "explain question upper case",
			text: "РАССКАЖИ О СЕБЕ?",
			want: model.Classification{Emotion: model.EmotionNeutral, Intent: model.IntentExplain, Urgency: model.UrgencyLow, Tone: model.ToneNeutral, Category: model.CategoryQuestion},
		},
		{
			name: "forget intent",
			text: "забудь это",
			want: model.Classification{Emotion: model.EmotionNeutral, Intent: model.IntentForget, Urgency: model.UrgencyLow, Tone: model.ToneNeutral, Category: model.CategoryDefault},
		},
		{
			name: "greeting",
			text: "Привет",
			want: model.Classification{Emotion: model.EmotionNeutral, Intent: model.IntentGeneral, Urgency: model.UrgencyLow, Tone: model.ToneNeutral, Category: model.CategoryGreeting},
		},
		{
			name: "situation",
			text: "Вчера я потерял работу",
			want: model.Classification{Emotion: model.EmotionNeutral, Intent: model.IntentGeneral, Urgency: model.UrgencyLow, Tone: model.ToneNeutral, Category: model.CategoryDefault, Situation: "lost_job"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Fatalf("Classify(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	c := NewClassifier(defaultSource())
	inputs := []string{"", "\x00", "\xff\xfe", "日本語のテキスト", "?????", "забудь", "a"}
	for _, in := range inputs {
		got := c.Classify(in)
		if got.Emotion == "" || got.Intent == "" || got.Urgency == "" || got.Tone == "" || got.Category == "" {
			t.Fatalf("Classify(%q) left an axis unset: %+v", in, got)
		}
	}
}
