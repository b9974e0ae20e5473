// Package discovery locates pipeline files, samples and stage directories on disk.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/singleronbio/scopetools/internal/report"
)

var (
	// ErrNoPipelines indicates that no pipeline files were found during discovery.
	ErrNoPipelines = errors.New("no pipelines discovered")
	// ErrNoStages indicates a sample directory without any NN.stage directories.
	ErrNoStages = errors.New("no stage directories discovered")
	// ErrNoSamples indicates an output directory without any report document.
	ErrNoSamples = errors.New("no samples discovered")
)

// PipelineDir is where pipeline definitions are looked up by default.
const PipelineDir = "pipelines"

// StageDir is one "NN.name" directory of a sample.
type StageDir struct {
	Index int
	Name  string
	Path  string
}

var stageDirRegex = regexp.MustCompile(`^(\d{2,})\.(.+)$`)

// StageDirName returns the directory name of a stage, e.g. "02.cutadapt".
func StageDirName(index int, name string) string {
	return fmt.Sprintf("%02d.%s", index, name)
}

// ParseStageDirName splits "02.cutadapt" into 2 and "cutadapt".
func ParseStageDirName(dir string) (int, string, bool) {
	m := stageDirRegex.FindStringSubmatch(dir)
	if m == nil {
		return 0, "", false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return idx, m[2], true
}

// Stages returns the stage directories of sampleDir ordered by index, then name.
func Stages(sampleDir string) ([]StageDir, error) {
	entries, err := os.ReadDir(sampleDir)
	if err != nil {
		return nil, fmt.Errorf("read sample dir %q: %w", sampleDir, err)
	}
	var stages []StageDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		idx, name, ok := ParseStageDirName(e.Name())
		if !ok {
			continue
		}
		stages = append(stages, StageDir{Index: idx, Name: name, Path: filepath.Join(sampleDir, e.Name())})
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoStages, sampleDir)
	}
	sort.Slice(stages, func(i, j int) bool {
		if stages[i].Index != stages[j].Index {
			return stages[i].Index < stages[j].Index
		}
		return stages[i].Name < stages[j].Name
	})
	return stages, nil
}

// Samples returns the names of the sample directories under outdir that hold
// a report document, sorted.
func Samples(outdir string) ([]string, error) {
	pattern := filepath.Join(outdir, "*", report.FileName)
	found, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, outdir)
	}
	samples := make([]string, 0, len(found))
	for _, f := range found {
		samples = append(samples, filepath.Base(filepath.Dir(f)))
	}
	sort.Strings(samples)
	return samples, nil
}

// Pipelines returns pipeline file paths. If explicit paths are provided they are
// validated and returned in the order given. Otherwise pipelines/*.yml and
// pipelines/*.yaml under root are used, sorted lexicographically.
func Pipelines(root string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return resolveExplicit(root, explicit)
	}

	matches := make(map[string]struct{})

	addMatches := func(pattern string) error {
		found, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range found {
			matches[m] = struct{}{}
		}
		return nil
	}

	if err := addMatches(filepath.Join(root, PipelineDir, "*.yml")); err != nil {
		return nil, err
	}
	if err := addMatches(filepath.Join(root, PipelineDir, "*.yaml")); err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, ErrNoPipelines
	}

	paths := make([]string, 0, len(matches))
	for p := range matches {
		paths = append(paths, mustRelOrClean(root, p))
	}
	sort.Strings(paths)

	return paths, nil
}

func resolveExplicit(root string, explicit []string) ([]string, error) {
	seen := make(map[string]struct{})
	resolved := make([]string, 0, len(explicit))
	for _, input := range explicit {
		cleaned := input
		if !filepath.IsAbs(cleaned) {
			cleaned = filepath.Join(root, cleaned)
		}
		info, err := os.Stat(cleaned)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("pipeline %q not found", input)
			}
			return nil, fmt.Errorf("stat %q: %w", input, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("pipeline %q is a directory", input)
		}
		rel := mustRelOrClean(root, cleaned)
		if _, ok := seen[rel]; ok {
			continue
		}
		seen[rel] = struct{}{}
		resolved = append(resolved, rel)
	}
	if len(resolved) == 0 {
		return nil, ErrNoPipelines
	}
	return resolved, nil
}

func mustRelOrClean(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Clean(path)
	}
	rel = filepath.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return filepath.Clean(path)
	}
	return rel
}
