package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/singleronbio/scopetools/internal/journal"
	"github.com/singleronbio/scopetools/internal/output"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the commands recorded for a sample",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	flags := cmd.Flags()
	flags.String("sample", "", "sample name")
	flags.Int("limit", 20, "number of most recent runs to print (0 for all)")
	_ = cmd.MarkFlagRequired("sample")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	sample, _ := cmd.Flags().GetString("sample")
	limit, _ := cmd.Flags().GetInt("limit")

	entries, total, err := readHistory(a.layout(sample).JournalPath(), limit)
	if err != nil {
		return err
	}

	if a.cfg.JSON() {
		return output.NewJSON(cmd.OutOrStdout()).RenderHistory(entries)
	}
	if err := output.NewPretty(cmd.OutOrStdout()).RenderHistory(entries); err != nil {
		return err
	}
	if total > len(entries) {
		fmt.Fprintf(cmd.OutOrStdout(), "showing %d of %d runs\n", len(entries), total)
	}
	return nil
}

// readHistory returns the most recent entries and the number of runs
// recorded. A sample without a journal has no history.
func readHistory(path string, limit int) ([]journal.Entry, int, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer j.Close()

	entries, err := j.List(limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := j.Count()
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
