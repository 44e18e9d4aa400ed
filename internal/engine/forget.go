package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"odanna-bot/internal/domain/model"
)

// Decision is what the forget protocol wants done. The caller applies the
// flag changes and answers with Reply; the utterance itself is not stored.
type Decision struct {
	Reply  string
	Mark   []string // message ids to flag ignored
	Unmark []string // message ids to clear
}

// Forgetter implements retroactive forgetting and its reversal.
type Forgetter struct {
	src Source
}

func NewForgetter(src Source) *Forgetter {
	return &Forgetter{src: src}
}

// IsCommand reports whether text starts with the forget prefix token.
func (f *Forgetter) IsCommand(text string) bool {
	_, ok := f.target(text)
	return ok
}

// TryForget handles a forget command. ok is false when text is not one.
// history must include ignored messages.
func (f *Forgetter) TryForget(text string, history []model.Message) (d Decision, ok bool) {
	target, ok := f.target(text)
	if !ok {
		return Decision{}, false
	}
	ph := f.src.Current().Forget
	if target == "" {
		return Decision{Reply: ph.AskTarget}, true
	}

	needle := strings.ToLower(target)
	seenIgnored := false
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if !m.FromUser() || !strings.Contains(strings.ToLower(m.Text), needle) {
			continue
		}
		if m.Ignored {
			seenIgnored = true
			continue
		}
		reply := strings.ReplaceAll(ph.Forgotten, "{quote}", quote(m.Text, ph.QuoteRunes))
		return Decision{Reply: reply, Mark: []string{m.ID}}, true
	}
	if seenIgnored && ph.AlreadyForgotten != "" {
		return Decision{Reply: ph.AlreadyForgotten}, true
	}
	return Decision{Reply: ph.NotFound}, true
}

// TryRecall clears the ignored flag of every user message whose text equals
// the utterance. ok is false when nothing matches.
func (f *Forgetter) TryRecall(text string, history []model.Message) (d Decision, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Decision{}, false
	}
	for _, m := range history {
		if m.FromUser() && m.Ignored && strings.TrimSpace(m.Text) == text {
			d.Unmark = append(d.Unmark, m.ID)
		}
	}
	if len(d.Unmark) == 0 {
		return Decision{}, false
	}
	d.Reply = f.src.Current().Forget.Recalled
	return d, true
}

// target splits off the prefix. The prefix must be a whole token: it is
// followed by the end of text or by a rune that is not a letter or digit.
func (f *Forgetter) target(text string) (string, bool) {
	prefix := f.src.Current().ForgetPrefix
	if prefix == "" {
		return "", false
	}
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(prefix)
	if utf8.RuneCountInString(text) < n {
		return "", false
	}
	cut := 0
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeRuneInString(text[cut:])
		cut += size
	}
	if !strings.EqualFold(text[:cut], prefix) {
		return "", false
	}
	rest := text[cut:]
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return "", false
	}
	rest = strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.TrimSpace(rest), true
}

func quote(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return model.Truncate(s, n) + "..."
}
