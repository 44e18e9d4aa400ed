package persona

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "persona.schema.json"

var compiled *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("persona: schema resource: %v", err))
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("persona: compile schema: %v", err))
	}
	compiled = s
}

// Default returns the embedded persona.
func Default() *Persona {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads a persona file. An empty path yields the embedded default.
func Load(path string) (*Persona, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	return Parse(b)
}

// Parse validates raw YAML against the schema, decodes it and applies
// defaults to unset numeric knobs.
func Parse(b []byte) (*Persona, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	if doc == nil {
		return nil, errors.New("persona: empty document")
	}
	// The validator expects JSON-shaped values.
	j, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("persona: to json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("persona: to json: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return nil, fmt.Errorf("persona: %w", err)
	}

	var p Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode persona: %w", err)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Persona) normalize() error {
	p.ForgetPrefix = strings.TrimSpace(p.ForgetPrefix)
	e := &p.Empathy
	if e.Ceiling == 0 {
		e.Ceiling = 100
	}
	if e.Floor > e.Ceiling {
		return fmt.Errorf("persona: empathy floor %d above ceiling %d", e.Floor, e.Ceiling)
	}
	if e.MidMaxCount < e.LowMaxCount {
		return fmt.Errorf("persona: mid_max_count %d below low_max_count %d", e.MidMaxCount, e.LowMaxCount)
	}
	if e.FemaleCap == 0 {
		e.FemaleCap = e.Ceiling
	}
	if e.Initial == nil {
		start := e.BaseMid
		e.Initial = &start
	}
	if p.Forget.QuoteRunes == 0 {
		p.Forget.QuoteRunes = 50
	}
	if p.Summary.MinWordRunes == 0 {
		p.Summary.MinWordRunes = 4
	}
	if p.Prompt.HistoryWindow == 0 {
		p.Prompt.HistoryWindow = 10
	}
	if p.ScenarioWrap.MaxPriorUserMessages == 0 {
		p.ScenarioWrap.MaxPriorUserMessages = 3
	}
	return nil
}
