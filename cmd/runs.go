package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List ingestion run history",
	Long:  "Lists ingestion snapshots, newest first. Filter by dataset or status.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dataset, _ := cmd.Flags().GetString("dataset")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		snaps, err := st.ListSnapshots(ctx, store.SnapshotFilter{
			Dataset: dataset,
			Status:  model.RunStatus(status),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "list snapshots")
		}

		if len(snaps) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatSnapshots(os.Stdout, snaps)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("dataset", "", "filter by dataset name")
	runsCmd.Flags().String("status", "", "filter by status: success, partial, failed, running")
	runsCmd.Flags().Int("limit", 20, "maximum rows")
	rootCmd.AddCommand(runsCmd)
}

func formatSnapshots(out io.Writer, snaps []model.IngestionSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATASET\tSOURCE\tSTATUS\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t------\t-------\t--------")

	for _, s := range snaps {
		dur := ""
		if s.FinishedAt != nil {
			dur = s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
		}

		source := s.Source
		if len(source) > 40 {
			source = source[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.Dataset,
			source,
			s.Status,
			s.StartedAt.Format(time.RFC3339),
			dur,
		)
	}
	_ = w.Flush()
}
