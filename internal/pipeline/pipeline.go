// Package pipeline reads declarative pipeline files: an ordered list of
// stages, each a shell command whose stdout is parsed by a statistics rule.
package pipeline

import (
	"regexp"

	"github.com/singleronbio/scopetools/internal/discovery"
	"github.com/singleronbio/scopetools/internal/filter"
)

// Definition is one parsed pipeline file.
type Definition struct {
	Path   string            `json:"path"`
	Name   string            `json:"name"`
	Env    map[string]string `json:"env,omitempty"`
	Stages []Stage           `json:"stages"`
}

// Stage is one step of a pipeline.
type Stage struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Run   string `json:"run"`
	// Rule names the statistics rule applied to stdout; empty skips parsing.
	Rule        string            `json:"rule,omitempty"`
	Version     string            `json:"version,omitempty"`
	Description string            `json:"description,omitempty"`
	Plot        string            `json:"plot,omitempty"`
	Images      map[string]string `json:"images,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// Dir returns the stage directory name, e.g. "02.cutadapt".
func (s Stage) Dir() string { return discovery.StageDirName(s.Index, s.Name) }

// Warning captures non-fatal issues encountered while parsing pipelines.
type Warning struct {
	Pipeline string `json:"pipeline"`
	Stage    string `json:"stage"`
	Message  string `json:"message"`
}

// Select keeps the stages whose name or directory matches only (when given)
// and matches none of skip.
func Select(stages []Stage, only, skip []filter.Pattern) []Stage {
	return filter.Select(stages, func(s Stage) []string {
		return []string{s.Name, s.Dir()}
	}, only, skip)
}

// Notes returns the stage descriptions keyed by stage name.
func (d Definition) Notes() map[string]string {
	notes := make(map[string]string)
	for _, s := range d.Stages {
		if s.Description != "" {
			notes[s.Name] = s.Description
		}
	}
	return notes
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces ${NAME} placeholders using the first layer defining NAME.
// Unknown placeholders and bare $NAME references are left for the shell.
func Expand(text string, layers ...map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[2 : len(m)-1]
		for _, layer := range layers {
			if v, ok := layer[name]; ok {
				return v
			}
		}
		return m
	})
}
