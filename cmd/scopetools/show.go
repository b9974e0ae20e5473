package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/singleronbio/scopetools/internal/discovery"
	"github.com/singleronbio/scopetools/internal/output"
	"github.com/singleronbio/scopetools/internal/report"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the report document of a sample, or list samples",
		Args:  cobra.NoArgs,
		RunE:  runShow,
	}
	cmd.Flags().String("sample", "", "sample name; empty lists the samples in --outdir")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	sample, _ := cmd.Flags().GetString("sample")

	if sample == "" {
		samples, err := discovery.Samples(a.cfg.OutDir)
		if err != nil && !errors.Is(err, discovery.ErrNoSamples) {
			return err
		}
		if a.cfg.JSON() {
			if samples == nil {
				samples = []string{}
			}
			return output.NewJSON(cmd.OutOrStdout()).Encode(samples)
		}
		if len(samples) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(no samples)")
		}
		for _, s := range samples {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	}

	doc, err := report.NewStore(a.log).Load(a.layout(sample).DocumentPath())
	if err != nil {
		return err
	}
	if a.cfg.JSON() {
		return output.NewJSON(cmd.OutOrStdout()).RenderDocument(doc)
	}
	return output.NewPretty(cmd.OutOrStdout()).RenderDocument(doc)
}
