package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/covertree/source"
)

func (a *app) queryCommand() *cobra.Command {
	var (
		vectorText string
		k          int
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Builds a cover tree and prints the nearest neighbours of a vector.",
	}
	cmd.Flags().StringVar(&vectorText, "vector", "", "Query vector, e.g. \"0.5,1,-2\".")
	cmd.Flags().IntVarP(&k, "neighbors", "k", 1, "Number of neighbours to print.")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		query, err := source.ParseVector(vectorText)
		if err != nil {
			return err
		}
		idx, err := a.buildIndex(cmd.Context())
		if err != nil {
			return err
		}
		ids, dists, err := idx.Query(query, k)
		if err != nil {
			return err
		}
		for i := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%.6g\n", i+1, ids[i], dists[i])
		}
		return nil
	}
	return cmd
}
