package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/fetcher"
	"github.com/lionmetrics/zonescope/internal/ingest"
	"github.com/lionmetrics/zonescope/internal/namenorm"
	"github.com/lionmetrics/zonescope/internal/zone"
)

// datasetOrder is the canonical run order. Boundaries go first so the name
// matcher and the point assigner see current zones within the same run.
var datasetOrder = []string{"zones", "hawkers", "mrt_exits", "bus_stops", "population"}

var ingestCmd = &cobra.Command{
	Use:   "ingest [dataset...]",
	Short: "Ingest configured datasets",
	Long: `Ingest datasets into the store. With no arguments, all configured
datasets run. Each dataset records one ingestion snapshot whatever the
outcome; a failing dataset never blocks the others.

Datasets: ` + strings.Join(datasetOrder, ", "),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("alias-overlay", "", "YAML alias table layered over the configured aliases for this run only")
	rootCmd.AddCommand(ingestCmd)
}

// selectDatasets validates names and returns them in canonical order,
// de-duplicated. Empty input selects everything.
func selectDatasets(names []string) ([]string, error) {
	if len(names) == 0 {
		return datasetOrder, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		found := false
		for _, known := range datasetOrder {
			if n == known {
				found = true
				break
			}
		}
		if !found {
			return nil, eris.Errorf("unknown dataset %q (datasets: %s)", n, strings.Join(datasetOrder, ", "))
		}
		want[n] = true
	}

	out := make([]string, 0, len(want))
	for _, n := range datasetOrder {
		if want[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

func buildDataset(name string) ingest.Dataset {
	switch name {
	case "zones":
		return &ingest.Zones{Src: cfg.Ingest.Datasets.Zones}
	case "hawkers":
		return &ingest.Hawkers{Src: cfg.Ingest.Datasets.Hawkers}
	case "mrt_exits":
		return &ingest.MRTExits{Src: cfg.Ingest.Datasets.MRTExits}
	case "bus_stops":
		return &ingest.BusStops{Src: cfg.Ingest.Datasets.BusStops}
	case "population":
		return &ingest.Population{Src: cfg.Ingest.Datasets.Population}
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := zap.L().With(zap.String("command", "ingest"))

	selected, err := selectDatasets(args)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	aliases := map[string]string{}
	if cfg.Aliases.Path != "" {
		aliases, err = namenorm.LoadAliases(cfg.Aliases.Path)
		if err != nil {
			return eris.Wrapf(err, "load aliases %s", cfg.Aliases.Path)
		}
	}

	var overlay map[string]string
	if path, _ := cmd.Flags().GetString("alias-overlay"); path != "" {
		overlay, err = namenorm.LoadAliases(path)
		if err != nil {
			return eris.Wrapf(err, "load alias overlay %s", path)
		}
		log.Info("alias overlay active", zap.String("path", path), zap.Int("entries", len(overlay)))
	}

	deps := ingest.Deps{
		Store:    st,
		Fetcher:  fetcher.NewMultiFetcher(cfg.Ingest.UserAgent),
		Assigner: zone.NewAssigner(st),
		Workers:  cfg.Ingest.Workers,
	}

	// Boundaries run alone before everything else; the later datasets
	// resolve names and assign points against the zones they just wrote.
	var ingestErr error
	if selected[0] == "zones" {
		ingestErr = ingest.NewEngine(deps, 1).Run(ctx, []ingest.Dataset{buildDataset("zones")})
		selected = selected[1:]
	}
	if err := deps.Assigner.Reload(ctx); err != nil {
		return eris.Wrap(err, "load zone boundaries")
	}

	if len(selected) > 0 {
		zones, err := st.ListZones(ctx)
		if err != nil {
			return eris.Wrap(err, "list zones")
		}
		resolver := namenorm.NewResolver(aliases, zones)
		if overlay != nil {
			resolver = resolver.WithOverlay(overlay)
		}
		deps.Resolver = resolver

		datasets := make([]ingest.Dataset, len(selected))
		for i, name := range selected {
			datasets[i] = buildDataset(name)
		}

		if err := ingest.NewEngine(deps, cfg.Ingest.Concurrency).Run(ctx, datasets); err != nil && ingestErr == nil {
			ingestErr = err
		}
	}

	if ingestErr != nil {
		return ingestErr
	}
	fmt.Println("Ingestion complete")
	return nil
}
