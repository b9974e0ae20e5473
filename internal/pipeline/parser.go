package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid reports a pipeline file that cannot be run.
var ErrInvalid = errors.New("invalid pipeline")

// RuleChecker reports whether a statistics rule name is known.
type RuleChecker func(name string) bool

// Parser loads pipeline files from disk.
type Parser struct {
	Root  string
	Rules RuleChecker
}

// NewParser constructs a Parser that resolves pipeline paths relative to root.
// A nil rules checker accepts every rule name.
func NewParser(root string, rules RuleChecker) *Parser {
	return &Parser{Root: root, Rules: rules}
}

// Parse reads the supplied pipeline paths.
func (p *Parser) Parse(paths []string) ([]Definition, []Warning, error) {
	var defs []Definition
	var warnings []Warning
	for _, relPath := range paths {
		full := relPath
		if !filepath.IsAbs(full) {
			full = filepath.Join(p.Root, relPath)
		}
		def, warns, err := p.parseFile(full, relPath)
		if err != nil {
			return nil, nil, err
		}
		defs = append(defs, def)
		warnings = append(warnings, warns...)
	}
	return defs, warnings, nil
}

func (p *Parser) parseFile(fullPath, displayPath string) (Definition, []Warning, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return Definition{}, nil, fmt.Errorf("open pipeline %q: %w", displayPath, err)
	}
	defer f.Close()
	return p.decode(f, displayPath)
}

var stageNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func (p *Parser) decode(r io.Reader, displayPath string) (Definition, []Warning, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var doc pipelineDocument
	if err := decoder.Decode(&doc); err != nil {
		return Definition{}, nil, fmt.Errorf("parse pipeline %q: %w", displayPath, err)
	}

	def := Definition{
		Path: displayPath,
		Name: doc.Name,
		Env:  convertEnv(doc.Env),
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(displayPath), filepath.Ext(displayPath))
	}
	if len(doc.Stages) == 0 {
		return Definition{}, nil, fmt.Errorf("%w %q: no stages", ErrInvalid, displayPath)
	}

	warnings := make([]Warning, 0)
	seenIndex := make(map[int]string)
	seenName := make(map[string]struct{})
	next := 1

	def.Stages = make([]Stage, 0, len(doc.Stages))
	for i, sd := range doc.Stages {
		if sd.Name == "" {
			return Definition{}, nil, fmt.Errorf("%w %q: stage %d has no name", ErrInvalid, displayPath, i+1)
		}
		if !stageNameRegex.MatchString(sd.Name) {
			return Definition{}, nil, fmt.Errorf("%w %q: stage name %q may only contain letters, digits, '-' and '_'", ErrInvalid, displayPath, sd.Name)
		}
		if _, dup := seenName[sd.Name]; dup {
			return Definition{}, nil, fmt.Errorf("%w %q: stage %q defined twice", ErrInvalid, displayPath, sd.Name)
		}
		seenName[sd.Name] = struct{}{}
		if strings.TrimSpace(sd.Run) == "" {
			return Definition{}, nil, fmt.Errorf("%w %q: stage %q has no run command", ErrInvalid, displayPath, sd.Name)
		}
		if sd.Rule != "" && p.Rules != nil && !p.Rules(sd.Rule) {
			return Definition{}, nil, fmt.Errorf("%w %q: stage %q uses unknown rule %q", ErrInvalid, displayPath, sd.Name, sd.Rule)
		}

		st := Stage{
			Name:        sd.Name,
			Index:       sd.Index,
			Run:         strings.TrimSpace(sd.Run),
			Rule:        sd.Rule,
			Version:     sd.Version,
			Description: sd.Description,
			Plot:        sd.Plot,
			Images:      sd.Images,
			Env:         convertEnv(sd.Env),
		}
		if st.Index <= 0 {
			st.Index = next
		}
		next = st.Index + 1

		if prev, dup := seenIndex[st.Index]; dup {
			warnings = append(warnings, Warning{
				Pipeline: displayPath,
				Stage:    st.Name,
				Message:  fmt.Sprintf("index %d is also used by stage %q", st.Index, prev),
			})
		}
		seenIndex[st.Index] = st.Name
		if st.Rule == "" {
			warnings = append(warnings, Warning{
				Pipeline: displayPath,
				Stage:    st.Name,
				Message:  "no rule; the report will hold no statistics for this stage",
			})
		}

		def.Stages = append(def.Stages, st)
	}

	return def, warnings, nil
}

type pipelineDocument struct {
	Name   string                 `yaml:"name"`
	Env    map[string]interface{} `yaml:"env"`
	Stages []stageDocument        `yaml:"stages"`
}

type stageDocument struct {
	Name        string                 `yaml:"name"`
	Index       int                    `yaml:"index"`
	Run         string                 `yaml:"run"`
	Rule        string                 `yaml:"rule"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description"`
	Plot        string                 `yaml:"plot"`
	Images      map[string]string      `yaml:"images"`
	Env         map[string]interface{} `yaml:"env"`
}

func convertEnv(input map[string]interface{}) map[string]string {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]string, len(input))
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = fmt.Sprint(input[k])
	}
	return out
}
