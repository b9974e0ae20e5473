package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/singleronbio/scopetools/internal/stage"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec --sample S --stage NAME [flags] -- COMMAND...",
		Short: "Run any command as a stage and record its statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExec,
	}
	flags := cmd.Flags()
	flags.String("sample", "", "sample name")
	flags.String("stage", "", "stage name")
	flags.Int("index", 0, "stage index used in the directory name")
	flags.String("rule", "", "statistics rule applied to stdout")
	flags.StringArray("image", nil, "image embedded in the report as NAME=PATH (repeatable)")
	flags.String("plot", "", "JSON file stored as the stage plot")
	flags.String("version-cmd", "", "command printing the tool version")
	flags.String("note", "", "Markdown description shown in the report")
	flags.StringArray("env", nil, "environment variable NAME=VALUE for the command (repeatable)")
	_ = cmd.MarkFlagRequired("sample")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	sample, _ := flags.GetString("sample")
	name, _ := flags.GetString("stage")
	index, _ := flags.GetInt("index")
	ruleName, _ := flags.GetString("rule")
	plot, _ := flags.GetString("plot")
	versionCmd, _ := flags.GetString("version-cmd")
	note, _ := flags.GetString("note")
	imagePairs, _ := flags.GetStringArray("image")
	envPairs, _ := flags.GetStringArray("env")

	images, err := keyValues("image", imagePairs)
	if err != nil {
		return err
	}
	env, err := keyValues("env", envPairs)
	if err != nil {
		return err
	}

	st := stage.Stage{
		Index:          index,
		Name:           name,
		Command:        strings.Join(args, " "),
		Plot:           plot,
		Images:         images,
		VersionCommand: versionCmd,
		Env:            env,
	}
	if ruleName != "" {
		st.Rule, err = a.rules.Lookup(ruleName)
		if err != nil {
			return err
		}
	}

	var notes map[string]string
	if note != "" {
		notes = map[string]string{name: note}
	}
	sess, err := a.openSession(sample, notes)
	if err != nil {
		return err
	}
	return a.runStages(cmd, sess, "", []stage.Stage{st}, nil)
}
