package ingest

import (
	"context"

	"github.com/lionmetrics/zonescope/internal/model"
)

// Hawkers ingests hawker centre locations with stall capacity.
type Hawkers struct {
	Src Source
}

func (d *Hawkers) Name() string        { return "hawkers" }
func (d *Hawkers) Kind() Kind          { return KindPoint }
func (d *Hawkers) SourceLabel() string { return d.Src.Label() }

func (d *Hawkers) Run(ctx context.Context, deps Deps) (*Result, error) {
	return runPointPipeline(ctx, deps, pointSpec{
		kind:       model.KindHawker,
		source:     d.Src,
		nameFields: []string{"name", "name_of_centre", "hc_name", "centre_name"},
		attrs: func(rec Record, row *pointRow) {
			if cap, ok := ExtractFloat(rec, "no_of_stalls", "stalls", "capacity"); ok {
				row.capacity = cap
			}
		},
	})
}
