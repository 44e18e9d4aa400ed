package engine

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/persona"
)

// RandomSource is the only randomness the selector uses. *rand.Rand from
// math/rand satisfies it.
type RandomSource interface {
	Intn(n int) int
	Float64() float64
}

// Selector picks the deterministic persona reply.
type Selector struct {
	src Source

	mu  sync.Mutex // guards rnd
	rnd RandomSource
}

// NewSelector builds a selector; a nil rnd is replaced by a time-seeded one.
func NewSelector(src Source, rnd RandomSource) *Selector {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{src: src, rnd: rnd}
}

// Select returns a reply for the current utterance. history holds the prior
// non-ignored messages of the chat, oldest first, without the utterance.
func (s *Selector) Select(history []model.Message, cls model.Classification, empathy int, scenario string, gender model.Gender) string {
	p := s.src.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	reply := s.pick(resolvePool(p, cls, empathy, gender))
	if e := p.Embellishment; e.Enabled && e.Suffix != "" && e.Probability > 0 {
		if s.rnd.Float64() < e.Probability {
			reply += e.Suffix
		}
	}
	if strings.TrimSpace(scenario) != "" {
		reply = s.wrap(p.ScenarioWrap, reply, priorUserMessages(history))
	}
	return reply
}

// Welcome is the reply for a chat with nothing to respond to.
func (s *Selector) Welcome() string {
	return s.src.Current().Welcome
}

func (s *Selector) pick(pool []string) string {
	switch len(pool) {
	case 0:
		return ""
	case 1:
		return pool[0]
	}
	return pool[s.rnd.Intn(len(pool))]
}

func (s *Selector) wrap(w persona.ScenarioWrap, reply string, prior int) string {
	if !w.Enabled || len(w.Templates) == 0 || prior >= w.MaxPriorUserMessages {
		return reply
	}
	t := w.Templates[0]
	if len(w.Templates) > 1 {
		t = w.Templates[s.rnd.Intn(len(w.Templates))]
	}
	if t.Lowercase {
		reply = strings.ToLower(reply)
	}
	return strings.ReplaceAll(t.Text, "{reply}", reply)
}

// resolvePool chooses the base pool (a matched situation outranks the
// category) and then applies tone modulation.
func resolvePool(p *persona.Persona, cls model.Classification, empathy int, gender model.Gender) []string {
	key := string(cls.Category)
	base := p.Pool(cls.Category)
	if cls.Situation != "" {
		for _, sit := range p.Situations {
			if sit.Name == cls.Situation && len(sit.Responses) > 0 {
				key, base = sit.Name, sit.Responses
				break
			}
		}
	}

	e := p.Empathy
	switch {
	case empathy >= e.WarmThreshold:
		if gender == model.GenderFemale {
			if v := p.Variants.WarmFemale.Lookup(key); len(v) > 0 {
				return v
			}
		}
		if v := p.Variants.Warm.Lookup(key); len(v) > 0 {
			return v
		}
	case empathy <= e.ReservedThreshold:
		if v := p.Variants.Reserved.Lookup(key); len(v) > 0 {
			return v
		}
	}
	return base
}

func priorUserMessages(history []model.Message) int {
	n := 0
	for _, m := range history {
		if m.FromUser() && !m.Ignored {
			n++
		}
	}
	return n
}
