package stats

import (
	"errors"
	"fmt"
	"sort"

	"github.com/singleronbio/scopetools/internal/config"
	"github.com/singleronbio/scopetools/internal/filter"
)

// ErrUnknownRule reports a lookup of a rule name that was never registered.
var ErrUnknownRule = errors.New("unknown statistics rule")

// Cutadapt markers for the adapter trimming summary.
const (
	CutadaptStart = "Total reads processed:"
	CutadaptEnd   = "Total written"
)

// Registry maps rule names to rules.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry returns a registry holding the built-in rules.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	cutadapt, err := NewMarkerRule("cutadapt", CutadaptStart, CutadaptEnd, nil)
	if err != nil {
		panic(err)
	}
	r.Register(cutadapt)
	return r
}

// FromConfig returns the built-in rules extended, or overridden, by the
// configured marker rules.
func FromConfig(rules []config.RuleConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, rc := range rules {
		invisible, err := filter.Compile(rc.Invisible)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
		}
		rule, err := NewMarkerRule(rc.Name, rc.Start, rc.End, invisible)
		if err != nil {
			return nil, err
		}
		reg.Register(rule)
	}
	return reg, nil
}

// Register adds rule, replacing any rule with the same name.
func (r *Registry) Register(rule Rule) {
	r.rules[rule.Name()] = rule
}

// Lookup returns the rule registered under name.
func (r *Registry) Lookup(name string) (Rule, error) {
	rule, ok := r.rules[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownRule, name, r.Names())
	}
	return rule, nil
}

// Names returns the registered rule names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
