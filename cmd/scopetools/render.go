package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/singleronbio/scopetools/internal/discovery"
	"github.com/singleronbio/scopetools/internal/logging"
	"github.com/singleronbio/scopetools/internal/output"
	"github.com/singleronbio/scopetools/internal/report"
	"github.com/singleronbio/scopetools/internal/stage"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Re-render the report of every stage of a sample",
		Args:  cobra.NoArgs,
		RunE:  runRender,
	}
	flags := cmd.Flags()
	flags.String("sample", "", "sample name")
	flags.String("template", output.DefaultTemplate, "template file name")
	flags.StringArray("file", nil, "pipeline file whose stage descriptions are shown")
	_ = cmd.MarkFlagRequired("sample")
	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	sample, _ := flags.GetString("sample")
	templateName, _ := flags.GetString("template")
	files, _ := flags.GetStringArray("file")

	layout := a.layout(sample)
	store := report.NewStore(a.log)
	notes, err := store.LoadNotes(layout.NotesPath())
	if err != nil {
		return err
	}
	if len(files) > 0 {
		data, err := a.loadPipelines(files)
		if err != nil {
			return err
		}
		for _, def := range data.definitions {
			for k, v := range def.Notes() {
				notes[k] = v
			}
		}
	}

	if _, err := os.Stat(layout.DocumentPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("sample %q has no report document at %s", sample, layout.DocumentPath())
		}
		return err
	}
	doc, err := store.Load(layout.DocumentPath())
	if err != nil {
		return err
	}
	dirs, err := discovery.Stages(layout.SampleDir())
	if err != nil {
		return err
	}

	renderer := output.NewHTML(output.HTMLOptions{
		TemplatesDir: a.cfg.TemplatesDir,
		Title:        sample,
		Notes:        notes,
		Logger:       a.log,
	})
	for _, dir := range dirs {
		path := stage.ReportPath(dir.Path)
		if err := renderer.Render(doc, templateName, path); err != nil {
			return fmt.Errorf("stage %s: %w", dir.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", path)
	}
	a.log.Info("reports rendered", logging.Sample(sample), slog.Int("stages", len(dirs)))
	return nil
}
