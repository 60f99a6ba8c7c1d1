package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *app) buildCommand() *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Builds a cover tree from the configured points and reports its shape.",
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "Check every tree invariant after the build.")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if validate {
			a.cfg.Validate = true
		}
		idx, err := a.buildIndex(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		stats := idx.Stats()
		report := idx.LastBuild()
		fmt.Fprintf(out, "points:      %s\n", humanize.Comma(int64(stats.Size)))
		fmt.Fprintf(out, "height:      %d (levels %d..%d)\n", stats.Height, stats.BottomLevel, stats.RootLevel)
		fmt.Fprintf(out, "shards:      %d in %d merge rounds\n", report.Shards, report.Rounds)
		fmt.Fprintf(out, "merged:      %s grafted, %s descended, %s reinserted\n",
			humanize.Comma(int64(report.Merge.Grafted)),
			humanize.Comma(int64(report.Merge.Descended)),
			humanize.Comma(int64(report.Merge.Reinserted)))
		fmt.Fprintf(out, "duration:    %s\n", report.Duration)
		if report.Duration > 0 {
			rate := float64(stats.Size) / report.Duration.Seconds()
			fmt.Fprintf(out, "throughput:  %s points/s\n", humanize.Comma(int64(rate)))
		}
		return nil
	}
	return cmd
}
