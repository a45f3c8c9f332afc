package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lionmetrics/zonescope/internal/quantile"
)

var breaksCmd = &cobra.Command{
	Use:   "breaks",
	Short: "Print choropleth class breaks for the latest scores",
	Long: `Computes k-bucket quantile breakpoints over the composite scores of
the latest score snapshot, for choropleth map styling.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		k, _ := cmd.Flags().GetInt("buckets")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, scores, err := st.LatestScores(ctx)
		if err != nil {
			return eris.Wrap(err, "load latest scores")
		}
		if snap == nil {
			return eris.New("no score snapshot exists yet; run `zonescope score` first")
		}

		values := make([]float64, len(scores))
		for i, s := range scores {
			values[i] = s.Composite
		}
		sort.Float64s(values)

		breaks, err := quantile.Breaks(values, k)
		if err != nil {
			return err
		}

		fmt.Printf("snapshot %d, %d zones, %d buckets (token %s)\n",
			snap.ID, len(values), k, quantile.Token(breaks))
		for i, b := range breaks {
			fmt.Printf("  break %d: %.4f\n", i+1, b)
		}
		return nil
	},
}

func init() {
	breaksCmd.Flags().IntP("buckets", "k", 5, "bucket count (2-10)")
	rootCmd.AddCommand(breaksCmd)
}
