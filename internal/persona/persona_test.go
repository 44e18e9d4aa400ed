package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"odanna-bot/internal/domain/model"
)

const minimalYAML = `
forget_prefix: "  forget "
vocabulary:
  positive: [good]
empathy:
  floor: 10
  ceiling: 90
  base_low: 20
  base_mid: 40
  base_high: 60
  low_max_count: 2
  mid_max_count: 5
pools:
  default: [hello]
forget:
  ask_target: what?
  forgotten: "gone: {quote}"
  not_found: none
  recalled: back
`

func TestDefaultPersona(t *testing.T) {
	p := Default()
	if p.ForgetPrefix != "забудь" {
		t.Fatalf("forget prefix = %q", p.ForgetPrefix)
	}
	for _, c := range model.Categories {
		if len(p.Pool(c)) == 0 {
			t.Fatalf("empty pool for %s", c)
		}
	}
	if p.Empathy.Floor != 35 || p.Empathy.Ceiling != 100 {
		t.Fatalf("range = [%d,%d]", p.Empathy.Floor, p.Empathy.Ceiling)
	}
	if got := len(p.Variants.WarmFemale.Lookup("thanks")); got != 3 {
		t.Fatalf("warm_female fallback pool size = %d", got)
	}
	if len(p.Situations) != 3 {
		t.Fatalf("situations = %d", len(p.Situations))
	}
	if !strings.Contains(p.SystemPrompt, "Небесной Гостиницы") {
		t.Fatalf("system prompt not loaded")
	}
}

func TestParseMinimalAppliesDefaults(t *testing.T) {
	p, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.ForgetPrefix != "forget" {
		t.Fatalf("prefix not trimmed: %q", p.ForgetPrefix)
	}
	if p.Forget.QuoteRunes != 50 || p.Prompt.HistoryWindow != 10 || p.ScenarioWrap.MaxPriorUserMessages != 3 {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.Empathy.FemaleCap != 90 || p.Empathy.Start() != 40 {
		t.Fatalf("empathy defaults: %+v", p.Empathy)
	}
	if got := p.Pool(model.CategoryGreeting); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("missing pool must fall back to default, got %v", got)
	}
}

func TestParseKeepsExplicitZeroInitial(t *testing.T) {
	doc := strings.Replace(minimalYAML, "  floor: 10\n", "  floor: 0\n  initial: 0\n", 1)
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Empathy.Initial == nil || p.Empathy.Start() != 0 {
		t.Fatalf("initial 0 replaced: %+v", p.Empathy)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	wrapNoReply := minimalYAML + "scenario_wrap:\n  templates:\n    - text: \"no placeholder\"\n"
	cases := map[string]string{
		"no default pool":    strings.Replace(minimalYAML, "default: [hello]", "greeting: [hi]", 1),
		"level above 100":    strings.Replace(minimalYAML, "ceiling: 90", "ceiling: 190", 1),
		"unknown key":        minimalYAML + "colour: red\n",
		"floor > ceiling":    strings.Replace(minimalYAML, "floor: 10", "floor: 95", 1),
		"wrap without reply": wrapNoReply,
		"empty":              "",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestStoreReloadKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := NewStore(p, path)

	updated := strings.Replace(minimalYAML, "default: [hello]", "default: [bonjour]", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := s.Current().Pools["default"][0]; got != "bonjour" {
		t.Fatalf("reload not applied: %q", got)
	}

	if err := os.WriteFile(path, []byte("pools: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if got := s.Current().Pools["default"][0]; got != "bonjour" {
		t.Fatalf("old persona lost: %q", got)
	}
}

func TestContainsAnyIgnoresEmptyKeywords(t *testing.T) {
	if ContainsAny("text", []string{""}) {
		t.Fatal("empty keyword matched")
	}
	if !ContainsAny("привет мир", []string{"ПРИВЕТ"}) {
		t.Fatal("keyword case not folded")
	}
}
