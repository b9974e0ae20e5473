package main

import (
	"fmt"
	"strings"

	"github.com/singleronbio/scopetools/internal/config"
	"github.com/spf13/cobra"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var values config.FlagValues

	for _, s := range []struct {
		name   string
		target *config.StringFlag
	}{
		{"outdir", &values.OutDir},
		{"log-level", &values.LogLevel},
		{"log-format", &values.LogFormat},
		{"format", &values.Format},
		{"timeout", &values.Timeout},
	} {
		if !flags.Changed(s.name) {
			continue
		}
		v, err := flags.GetString(s.name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", s.name, err)
		}
		*s.target = config.StringFlag{Value: v, Set: true}
	}

	if flags.Lookup("only-stage") != nil && flags.Changed("only-stage") {
		v, err := flags.GetStringArray("only-stage")
		if err != nil {
			return values, fmt.Errorf("parse --only-stage: %w", err)
		}
		values.OnlyStages = config.SliceFlag{Values: append([]string{}, v...)}
	}

	if flags.Lookup("skip-stage") != nil && flags.Changed("skip-stage") {
		v, err := flags.GetStringArray("skip-stage")
		if err != nil {
			return values, fmt.Errorf("parse --skip-stage: %w", err)
		}
		values.SkipStages = config.SliceFlag{Values: append([]string{}, v...)}
	}

	if flags.Changed("no-journal") {
		v, err := flags.GetBool("no-journal")
		if err != nil {
			return values, fmt.Errorf("parse --no-journal: %w", err)
		}
		values.NoJournal = config.BoolFlag{Value: v, Set: true}
	}

	return values, nil
}

// keyValues parses repeated NAME=VALUE flags.
func keyValues(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("parse --%s: %q is not NAME=VALUE", flag, pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}
