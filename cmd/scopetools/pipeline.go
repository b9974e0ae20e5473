package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/singleronbio/scopetools/internal/discovery"
	"github.com/singleronbio/scopetools/internal/filter"
	"github.com/singleronbio/scopetools/internal/output"
	"github.com/singleronbio/scopetools/internal/pipeline"
	"github.com/singleronbio/scopetools/internal/stage"
)

func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the stages of a pipeline file for one sample",
		Args:  cobra.NoArgs,
		RunE:  runPipeline,
	}
	flags := cmd.Flags()
	flags.String("sample", "", "sample name")
	flags.StringArray("file", nil, "pipeline file (default pipelines/*.yml)")
	flags.StringArray("only-stage", nil, "include only matching stages")
	flags.StringArray("skip-stage", nil, "exclude matching stages")
	flags.StringArray("set", nil, "placeholder value NAME=VALUE (repeatable)")
	flags.Bool("list", false, "list the selected stages without running them")
	return cmd
}

// pipelineData bundles parsed definitions with their warnings.
type pipelineData struct {
	definitions []pipeline.Definition
	warnings    []pipeline.Warning
}

func (a *app) loadPipelines(files []string) (pipelineData, error) {
	paths, err := discovery.Pipelines(a.root, files)
	if err != nil {
		if errors.Is(err, discovery.ErrNoPipelines) {
			return pipelineData{}, fmt.Errorf("no pipelines found; specify --file to provide one")
		}
		return pipelineData{}, err
	}
	parser := pipeline.NewParser(a.root, func(name string) bool {
		_, err := a.rules.Lookup(name)
		return err == nil
	})
	defs, warnings, err := parser.Parse(paths)
	if err != nil {
		return pipelineData{}, err
	}
	return pipelineData{definitions: defs, warnings: warnings}, nil
}

func (a *app) selectStages(data pipelineData) (pipelineData, error) {
	only, err := filter.Compile(a.cfg.OnlyStages)
	if err != nil {
		return pipelineData{}, err
	}
	skip, err := filter.Compile(a.cfg.SkipStages)
	if err != nil {
		return pipelineData{}, err
	}
	out := pipelineData{warnings: data.warnings}
	for _, def := range data.definitions {
		def.Stages = pipeline.Select(def.Stages, only, skip)
		out.definitions = append(out.definitions, def)
	}
	return out, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	files, _ := flags.GetStringArray("file")
	list, _ := flags.GetBool("list")
	setPairs, _ := flags.GetStringArray("set")
	sample, _ := flags.GetString("sample")

	set, err := keyValues("set", setPairs)
	if err != nil {
		return err
	}

	data, err := a.loadPipelines(files)
	if err != nil {
		return err
	}
	data, err = a.selectStages(data)
	if err != nil {
		return err
	}
	warnings := collapseWarnings(data.warnings)

	if list {
		return a.renderList(cmd, data.definitions, warnings)
	}
	if len(data.definitions) != 1 {
		return fmt.Errorf("%d pipelines found; choose one with --file", len(data.definitions))
	}
	def := data.definitions[0]
	if len(def.Stages) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching stages")
		return nil
	}

	stages := make([]stage.Stage, 0, len(def.Stages))
	for _, ps := range def.Stages {
		ps.Env = mergeMaps(def.Env, ps.Env, set)
		st, err := stage.FromPipeline(ps, a.rules)
		if err != nil {
			return err
		}
		stages = append(stages, st)
	}

	sess, err := a.openSession(sample, def.Notes())
	if err != nil {
		return err
	}
	return a.runStages(cmd, sess, def.Name, stages, warnings)
}

func (a *app) renderList(cmd *cobra.Command, defs []pipeline.Definition, warnings []string) error {
	if a.cfg.JSON() {
		payload := struct {
			Pipelines []pipeline.Definition `json:"pipelines"`
			Warnings  []string              `json:"warnings,omitempty"`
		}{Pipelines: defs, Warnings: warnings}
		return output.NewJSON(cmd.OutOrStdout()).Encode(payload)
	}
	pretty := output.NewPretty(cmd.OutOrStdout())
	for _, def := range defs {
		if err := pretty.RenderList(def); err != nil {
			return err
		}
	}
	for _, msg := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", msg)
	}
	return nil
}

func collapseWarnings(warnings []pipeline.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, fmt.Sprintf("%s:%s: %s", w.Pipeline, w.Stage, w.Message))
	}
	return out
}

// mergeMaps overlays maps in order; later maps win.
func mergeMaps(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
