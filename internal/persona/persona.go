// Package persona holds the externally loadable character configuration:
// keyword vocabularies, empathy constants, reply pools and templates.
package persona

import (
	"strings"

	"odanna-bot/internal/domain/model"
)

// Persona is the complete configuration consumed by the engine.
type Persona struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	Welcome      string `yaml:"welcome"`
	ForgetPrefix string `yaml:"forget_prefix"`

	Vocabulary    Vocabulary          `yaml:"vocabulary"`
	Empathy       Empathy             `yaml:"empathy"`
	Pools         map[string][]string `yaml:"pools"`
	Variants      Variants            `yaml:"variants"`
	Situations    []Situation         `yaml:"situations"`
	ScenarioWrap  ScenarioWrap        `yaml:"scenario_wrap"`
	Embellishment Embellishment       `yaml:"embellishment"`
	Forget        ForgetPhrases       `yaml:"forget"`
	Summary       Summary             `yaml:"summary"`
	Prompt        Prompt              `yaml:"prompt"`
}

// Vocabulary lists keywords per classification axis. Matching is a
// case-insensitive substring test; list order is irrelevant, group order
// is fixed by the engine.
type Vocabulary struct {
	Positive   []string `yaml:"positive"`
	Negative   []string `yaml:"negative"`
	Urgent     []string `yaml:"urgent"`
	Forget     []string `yaml:"forget"`
	Help       []string `yaml:"help"`
	Explain    []string `yaml:"explain"`
	Polite     []string `yaml:"polite"`
	Aggressive []string `yaml:"aggressive"`

	Greeting  []string `yaml:"greeting"`
	Farewell  []string `yaml:"farewell"`
	Thanks    []string `yaml:"thanks"`
	HelpAsk   []string `yaml:"help_request"`
	Complaint []string `yaml:"complaint"`
	Question  []string `yaml:"question"`
}

// CategoryKeywords returns the keywords of a reply category, nil for default.
func (v Vocabulary) CategoryKeywords(c model.Category) []string {
	switch c {
	case model.CategoryGreeting:
		return v.Greeting
	case model.CategoryFarewell:
		return v.Farewell
	case model.CategoryThanks:
		return v.Thanks
	case model.CategoryHelp:
		return v.HelpAsk
	case model.CategoryComplaint:
		return v.Complaint
	case model.CategoryQuestion:
		return v.Question
	}
	return nil
}

// Start is the level of a chat before its first message.
func (e Empathy) Start() int {
	if e.Initial == nil {
		return e.BaseMid
	}
	return *e.Initial
}

// Empathy holds the staircase and the additive adjustments.
type Empathy struct {
	Floor   int  `yaml:"floor"`
	Ceiling int  `yaml:"ceiling"`
	Initial *int `yaml:"initial"` // unset starts new chats at BaseMid

	LowMaxCount int `yaml:"low_max_count"`
	MidMaxCount int `yaml:"mid_max_count"`
	BaseLow     int `yaml:"base_low"`
	BaseMid     int `yaml:"base_mid"`
	BaseHigh    int `yaml:"base_high"`

	Negative   int `yaml:"negative"`
	Positive   int `yaml:"positive"`
	Urgent     int `yaml:"urgent"`
	Aggressive int `yaml:"aggressive"`
	Female     int `yaml:"female"`
	FemaleCap  int `yaml:"female_cap"`

	WarmThreshold     int `yaml:"warm_threshold"`
	ReservedThreshold int `yaml:"reserved_threshold"`
}

// VariantSet is a tone variant: per-category pools plus a catch-all pool.
type VariantSet struct {
	Default    []string            `yaml:"default"`
	ByCategory map[string][]string `yaml:"by_category"`
}

// Lookup returns the most specific non-empty pool for key.
func (v VariantSet) Lookup(key string) []string {
	if p := v.ByCategory[key]; len(p) > 0 {
		return p
	}
	return v.Default
}

type Variants struct {
	Warm       VariantSet `yaml:"warm"`
	WarmFemale VariantSet `yaml:"warm_female"`
	Reserved   VariantSet `yaml:"reserved"`
}

// Situation is a life-event pool that outranks the category pools.
type Situation struct {
	Name      string   `yaml:"name"`
	Keywords  []string `yaml:"keywords"`
	Responses []string `yaml:"responses"`
}

type WrapTemplate struct {
	Text      string `yaml:"text"` // must contain {reply}
	Lowercase bool   `yaml:"lowercase"`
}

type ScenarioWrap struct {
	Enabled bool `yaml:"enabled"`

	// MaxPriorUserMessages: wrap while fewer prior user messages exist.
	MaxPriorUserMessages int            `yaml:"max_prior_user_messages"`
	Templates            []WrapTemplate `yaml:"templates"`
}

type Embellishment struct {
	Enabled     bool    `yaml:"enabled"`
	Suffix      string  `yaml:"suffix"`
	Probability float64 `yaml:"probability"`
}

// ForgetPhrases are the replies of the forget protocol. Forgotten may
// contain {quote}.
type ForgetPhrases struct {
	AskTarget        string `yaml:"ask_target"`
	Forgotten        string `yaml:"forgotten"`
	NotFound         string `yaml:"not_found"`
	AlreadyForgotten string `yaml:"already_forgotten"`
	Recalled         string `yaml:"recalled"`
	QuoteRunes       int    `yaml:"quote_runes"`
}

// Summary drives the keyword-frequency chat summary. Template may contain
// {count} and {topics}.
type Summary struct {
	StopWords    []string `yaml:"stop_words"`
	TopN         int      `yaml:"top_n"`
	MinWordRunes int      `yaml:"min_word_runes"`
	Template     string   `yaml:"template"`
	NoTopics     string   `yaml:"no_topics"`
	Empty        string   `yaml:"empty"`
}

// Prompt configures the optional generative mode.
type Prompt struct {
	HistoryWindow    int    `yaml:"history_window"`
	HighEmpathy      string `yaml:"high_empathy"`
	ModerateEmpathy  string `yaml:"moderate_empathy"`
	ReservedEmpathy  string `yaml:"reserved_empathy"`
	ModerateFrom     int    `yaml:"moderate_from"`
	ScenarioTemplate string `yaml:"scenario_template"`
}

// Pool returns the base pool of a category, falling back to default.
func (p *Persona) Pool(c model.Category) []string {
	if pool := p.Pools[string(c)]; len(pool) > 0 {
		return pool
	}
	return p.Pools[string(model.CategoryDefault)]
}

// Situation returns the first situation any keyword of which occurs in the
// lowered text.
func (p *Persona) Situation(lowered string) (Situation, bool) {
	for _, s := range p.Situations {
		if ContainsAny(lowered, s.Keywords) {
			return s, true
		}
	}
	return Situation{}, false
}

// ContainsAny reports whether any keyword is a substring of lowered.
// Keywords are compared in lower case; empty keywords never match.
func ContainsAny(lowered string, keywords []string) bool {
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
