package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/singleronbio/scopetools/internal/stage"
)

const (
	cutadaptStage = "cutadapt"
	cutadaptIndex = 2
)

const cutadaptNote = `Adapter and poly(A) trimming of read 2 with **cutadapt**.
Reads shorter than the minimum length after trimming are discarded.`

var (
	polyAdapterRegex = regexp.MustCompile(`^([ATCGatcg]\{\d+\})+$`)
	seqAdapterRegex  = regexp.MustCompile(`^[ATCGatcg]+$`)
)

// parseAdapter accepts "A{18}", "polyT=A{5}T{10}", "AGATCG" or "p5=agatcg"
// and returns the adapter without its name.
func parseAdapter(value string) (string, error) {
	adapter := value
	if idx := strings.LastIndex(value, "="); idx != -1 {
		adapter = value[idx+1:]
	}
	if polyAdapterRegex.MatchString(adapter) || seqAdapterRegex.MatchString(adapter) {
		return adapter, nil
	}
	return "", fmt.Errorf("%q is not a valid adapter pattern", adapter)
}

func newCutadaptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cutadapt",
		Short: "Trim adapters and poly(A) tails from read 2",
		Args:  cobra.NoArgs,
		RunE:  runCutadapt,
	}
	flags := cmd.Flags()
	flags.String("sample", "", "sample name")
	flags.String("fq", "", "read 2 fastq file")
	flags.StringArray("adapter", nil, "adapter pattern, optionally named (repeatable)")
	flags.Int("minimum-length", 0, "discard reads shorter than this after trimming")
	flags.Int("nextseq-trim", 0, "NextSeq-specific quality trimming cutoff")
	flags.Int("overlap", 0, "minimum overlap between read and adapter")
	flags.Int("thread", 0, "cutadapt worker threads")
	_ = cmd.MarkFlagRequired("sample")
	_ = cmd.MarkFlagRequired("fq")
	return cmd
}

func runCutadapt(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	sample, _ := flags.GetString("sample")
	fq, _ := flags.GetString("fq")

	opts := a.cfg.Cutadapt
	if flags.Changed("adapter") {
		opts.Adapters, _ = flags.GetStringArray("adapter")
	}
	for name, target := range map[string]*int{
		"minimum-length": &opts.MinimumLength,
		"nextseq-trim":   &opts.NextseqTrim,
		"overlap":        &opts.Overlap,
		"thread":         &opts.Thread,
	} {
		if flags.Changed(name) {
			v, err := flags.GetInt(name)
			if err != nil {
				return fmt.Errorf("parse --%s: %w", name, err)
			}
			*target = v
		}
	}
	if len(opts.Adapters) == 0 {
		return errors.New("at least one --adapter is required")
	}

	adapters := make([]string, 0, len(opts.Adapters))
	for _, raw := range opts.Adapters {
		adapter, err := parseAdapter(raw)
		if err != nil {
			return fmt.Errorf("parse --adapter: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	rule, err := a.rules.Lookup(cutadaptStage)
	if err != nil {
		return err
	}
	layout := a.layout(sample)
	clean := filepath.Join(layout.StageDir(cutadaptIndex, cutadaptStage), sample+"_clean_2.fq.gz")

	parts := []string{"cutadapt"}
	for _, adapter := range adapters {
		parts = append(parts, "-a", adapter)
	}
	parts = append(parts,
		"-n", strconv.Itoa(len(adapters)),
		"-j", strconv.Itoa(opts.Thread),
		"-m", strconv.Itoa(opts.MinimumLength),
		"--nextseq-trim="+strconv.Itoa(opts.NextseqTrim),
		"--overlap", strconv.Itoa(opts.Overlap),
		"-o", shellQuote(clean),
		shellQuote(fq),
	)

	sess, err := a.openSession(sample, map[string]string{cutadaptStage: cutadaptNote})
	if err != nil {
		return err
	}
	st := stage.Stage{
		Index:          cutadaptIndex,
		Name:           cutadaptStage,
		Command:        strings.Join(parts, " "),
		Rule:           rule,
		VersionCommand: "cutadapt --version",
	}
	return a.runStages(cmd, sess, "", []stage.Stage{st}, nil)
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:=+,@%-]+$`)

// shellQuote quotes s for /bin/sh when it holds characters the shell would
// interpret.
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
