package engine

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"odanna-bot/internal/domain/model"
)

// Summarizer builds the keyword-frequency description of a chat.
type Summarizer struct {
	src Source
}

func NewSummarizer(src Source) *Summarizer {
	return &Summarizer{src: src}
}

// Summarize describes msgs, which should already exclude ignored messages.
// Topics are the most frequent user words; ties keep first-seen order.
func (s *Summarizer) Summarize(msgs []model.Message) string {
	cfg := s.src.Current().Summary
	if len(msgs) == 0 {
		return cfg.Empty
	}

	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	type entry struct {
		word  string
		count int
		first int
	}
	freq := map[string]*entry{}
	pos := 0
	for _, m := range msgs {
		if !m.FromUser() {
			continue
		}
		for _, w := range strings.Fields(strings.ToLower(m.Text)) {
			w = strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
			if utf8.RuneCountInString(w) < cfg.MinWordRunes {
				continue
			}
			if _, skip := stop[w]; skip {
				continue
			}
			if e, ok := freq[w]; ok {
				e.count++
				continue
			}
			freq[w] = &entry{word: w, count: 1, first: pos}
			pos++
		}
	}

	entries := make([]*entry, 0, len(freq))
	for _, e := range freq {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].first < entries[j].first
	})
	if cfg.TopN >= 0 && len(entries) > cfg.TopN {
		entries = entries[:cfg.TopN]
	}

	count := strconv.Itoa(len(msgs))
	if len(entries) == 0 {
		return strings.ReplaceAll(cfg.NoTopics, "{count}", count)
	}
	topics := make([]string, len(entries))
	for i, e := range entries {
		topics[i] = e.word
	}
	out := strings.ReplaceAll(cfg.Template, "{count}", count)
	return strings.ReplaceAll(out, "{topics}", strings.Join(topics, ", "))
}
