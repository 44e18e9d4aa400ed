// Package engine implements the deterministic conversation core: utterance
// classification, empathy tracking, reply selection, the forget protocol and
// chat summaries. Nothing in here performs I/O.
package engine

import "odanna-bot/internal/persona"

// Source yields the persona in effect. *persona.Store satisfies it, so a
// hot reload is picked up by the next call.
type Source interface {
	Current() *persona.Persona
}

type static struct{ p *persona.Persona }

func (s static) Current() *persona.Persona { return s.p }

// Static wraps a fixed persona.
func Static(p *persona.Persona) Source { return static{p: p} }
