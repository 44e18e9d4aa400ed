package engine

import (
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/persona"
)

// fixedRand always picks index n (modulo the pool) and returns f.
type fixedRand struct {
	n int
	f float64
}

func (r fixedRand) Intn(n int) int   { return r.n % n }
func (r fixedRand) Float64() float64 { return r.f }

func defaultSource() Source { return Static(persona.Default()) }

func userMsg(id, text string) model.Message {
	return model.Message{ID: id, Role: model.RoleUser, Text: text}
}

func botMsg(id, text string) model.Message {
	return model.Message{ID: id, Role: model.RoleAssistant, Text: text}
}
