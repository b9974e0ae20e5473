package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/singleronbio/scopetools/internal/filter"
)

func knownRules(names ...string) RuleChecker {
	return func(name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
}

func TestParserParseBasic(t *testing.T) {
	parser := NewParser("testdata", knownRules("cutadapt", "star"))

	defs, warnings, err := parser.Parse([]string{"rna.yml"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	def := defs[0]
	if def.Name != "rna" || def.Path != "rna.yml" {
		t.Fatalf("unexpected definition header: %+v", def)
	}
	if def.Env["THREADS"] != "4" {
		t.Fatalf("expected numeric env converted to string, got %v", def.Env)
	}
	if len(def.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(def.Stages))
	}

	dirs := []string{def.Stages[0].Dir(), def.Stages[1].Dir(), def.Stages[2].Dir()}
	if strings.Join(dirs, ",") != "01.barcode,02.cutadapt,03.star" {
		t.Fatalf("unexpected stage dirs %v", dirs)
	}
	cut := def.Stages[1]
	if strings.HasSuffix(cut.Run, "\n") {
		t.Fatalf("run command should be trimmed: %q", cut.Run)
	}
	if cut.Images["qc"] != "${STAGE_DIR}/qc.png" {
		t.Fatalf("images must stay unexpanded until run time: %v", cut.Images)
	}
	if def.Stages[2].Env["TMPDIR"] != "/scratch" {
		t.Fatalf("unexpected stage env %v", def.Stages[2].Env)
	}
	if notes := def.Notes(); len(notes) != 1 || !strings.Contains(notes["cutadapt"], "**polyA**") {
		t.Fatalf("unexpected notes %v", notes)
	}

	if len(warnings) != 1 || warnings[0].Stage != "barcode" {
		t.Fatalf("expected a missing-rule warning for barcode, got %+v", warnings)
	}
}

func TestParserDuplicateIndexWarns(t *testing.T) {
	defs, warnings, err := NewParser("testdata", nil).Parse([]string{"duplicate_index.yml"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if defs[0].Name != "duplicate_index" {
		t.Fatalf("expected name from file, got %q", defs[0].Name)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, `stage "one"`) {
		t.Fatalf("expected duplicate index warning, got %+v", warnings)
	}
}

func TestParserErrors(t *testing.T) {
	cases := map[string]string{
		"no stages":    "name: x\n",
		"no name":      "stages:\n  - run: echo\n",
		"bad name":     "stages:\n  - name: a/b\n    run: echo\n",
		"no run":       "stages:\n  - name: a\n",
		"unknown rule": "stages:\n  - name: a\n    run: echo\n    rule: nope\n",
		"twice":        "stages:\n  - name: a\n    run: echo\n  - name: a\n    run: echo\n",
	}
	parser := NewParser("", knownRules("cutadapt"))
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := parser.decode(strings.NewReader(body), "inline.yml")
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	if _, _, err := parser.decode(strings.NewReader("stages:\n  - name: a\n    run: echo\n    bogus: 1\n"), "inline.yml"); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, _, err := parser.Parse([]string{"missing.yml"}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestExpand(t *testing.T) {
	vars := map[string]string{"SAMPLE": "s1", "STAGE_DIR": "/out/s1/02.cutadapt"}
	env := map[string]string{"SAMPLE": "ignored", "THREADS": "4"}

	got := Expand(`cutadapt -j ${THREADS} -o ${STAGE_DIR}/${SAMPLE}.fq.gz ${UNKNOWN} $HOME | awk '{print $1}'`, vars, env)
	want := `cutadapt -j 4 -o /out/s1/02.cutadapt/s1.fq.gz ${UNKNOWN} $HOME | awk '{print $1}'`
	if got != want {
		t.Fatalf("Expand = %q, want %q", got, want)
	}
}

func TestSelect(t *testing.T) {
	stages := []Stage{{Name: "barcode", Index: 1}, {Name: "cutadapt", Index: 2}, {Name: "star", Index: 3}}

	only := filter.MustCompile("/^0[23]\\./")
	skip := filter.MustCompile("star")
	got := Select(stages, only, skip)
	if len(got) != 1 || got[0].Name != "cutadapt" {
		t.Fatalf("unexpected selection %+v", got)
	}
}
