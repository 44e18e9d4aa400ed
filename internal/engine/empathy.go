package engine

import "odanna-bot/internal/domain/model"

const (
	MinEmpathy = 0
	MaxEmpathy = 100
)

// EmpathyTracker derives the per-chat empathy score.
type EmpathyTracker struct {
	src Source
}

func NewEmpathyTracker(src Source) *EmpathyTracker {
	return &EmpathyTracker{src: src}
}

// Base is the staircase component for the given user message count.
func (t *EmpathyTracker) Base(count int64) int {
	e := t.src.Current().Empathy
	switch {
	case count <= int64(e.LowMaxCount):
		return e.BaseLow
	case count <= int64(e.MidMaxCount):
		return e.BaseMid
	default:
		return e.BaseHigh
	}
}

// Next computes the score after the count-th user message. The staircase
// is recomputed from the count every time, so the previous score never
// carries over. All deltas are summed once, then clamped.
func (t *EmpathyTracker) Next(cls model.Classification, count int64, gender model.Gender) int {
	e := t.src.Current().Empathy
	total := t.Base(count)

	switch cls.Emotion {
	case model.EmotionNegative:
		total += e.Negative
	case model.EmotionPositive:
		total += e.Positive
	}
	if cls.Urgency == model.UrgencyHigh {
		total += e.Urgent
	}
	if cls.Tone == model.ToneAggressive {
		total += e.Aggressive
	}
	if gender == model.GenderFemale && total < e.FemaleCap {
		total = min(total+e.Female, e.FemaleCap)
	}
	return clamp(total, max(e.Floor, MinEmpathy), min(e.Ceiling, MaxEmpathy))
}

// Override bounds a manually pinned level. Only the hard range applies so
// that a reserved setting below the soft floor stays reachable.
func (t *EmpathyTracker) Override(level int) int {
	return clamp(level, MinEmpathy, MaxEmpathy)
}

// Initial is the score of a chat before its first message.
func (t *EmpathyTracker) Initial() int {
	return clamp(t.src.Current().Empathy.Start(), MinEmpathy, MaxEmpathy)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
