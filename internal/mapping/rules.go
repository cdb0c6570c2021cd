package mapping

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/petro-etl/internal/model"
)

//go:embed product_rules.yaml
var defaultRules []byte

// Rule suggests a canonical product for labels containing one of its keywords.
type Rule struct {
	Canonical string          `yaml:"canonical"`
	Family    string          `yaml:"family"`
	UnitClass model.UnitClass `yaml:"unit_class"`
	Factor    float64         `yaml:"factor"`
	Keywords  []string        `yaml:"keywords"`
	Exclude   []string        `yaml:"exclude"`

	keywords [][]string
	exclude  [][]string
}

// Rules is an ordered product rule catalog.
type Rules struct {
	rules []Rule
}

// DefaultRules returns the catalog compiled into the binary.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRules reads a rule catalog, or returns the built-in one when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read rules %s", path)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule catalog.
func ParseRules(data []byte) (*Rules, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "mapping: parse rules")
	}

	var errs []string
	for i := range doc.Rules {
		r := &doc.Rules[i]
		if r.Canonical == "" {
			errs = append(errs, fmt.Sprintf("rule %d: canonical is required", i))
		}
		switch r.UnitClass {
		case model.UnitClassVolume:
			if r.Factor <= 0 {
				errs = append(errs, fmt.Sprintf("rule %q: volume products need a factor > 0", r.Canonical))
			}
		case model.UnitClassWeight:
		default:
			errs = append(errs, fmt.Sprintf("rule %q: unit_class must be volume or weight", r.Canonical))
		}
		if len(r.Keywords) == 0 {
			errs = append(errs, fmt.Sprintf("rule %q: at least one keyword is required", r.Canonical))
		}
		for _, k := range r.Keywords {
			r.keywords = append(r.keywords, tokens(k))
		}
		for _, k := range r.Exclude {
			r.exclude = append(r.exclude, tokens(k))
		}
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("mapping: invalid rules: %s", strings.Join(errs, "; "))
	}
	return &Rules{rules: doc.Rules}, nil
}

// Match returns the first rule whose keywords appear in label.
func (r *Rules) Match(label string) (Rule, bool) {
	toks := tokens(label)
	for _, rule := range r.rules {
		if anyPhrase(toks, rule.exclude) {
			continue
		}
		if anyPhrase(toks, rule.keywords) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Len returns the number of rules.
func (r *Rules) Len() int { return len(r.rules) }

func anyPhrase(toks []string, phrases [][]string) bool {
	for _, p := range phrases {
		if containsPhrase(toks, p) {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs as consecutive tokens.
func containsPhrase(toks, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(toks) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(toks); i++ {
		for j, p := range phrase {
			if toks[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}
