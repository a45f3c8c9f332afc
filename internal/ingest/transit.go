package ingest

import (
	"context"

	"github.com/lionmetrics/zonescope/internal/model"
)

// MRTExits ingests rapid-transit station exits. LineCount weights stations
// serving multiple lines more heavily in the accessibility kernel.
type MRTExits struct {
	Src Source
}

func (d *MRTExits) Name() string        { return "mrt_exits" }
func (d *MRTExits) Kind() Kind          { return KindPoint }
func (d *MRTExits) SourceLabel() string { return d.Src.Label() }

func (d *MRTExits) Run(ctx context.Context, deps Deps) (*Result, error) {
	return runPointPipeline(ctx, deps, pointSpec{
		kind:       model.KindMRTExit,
		source:     d.Src,
		nameFields: []string{"station_name", "stn_name", "name", "exit_code"},
		attrs: func(rec Record, row *pointRow) {
			if n, ok := ExtractFloat(rec, "line_count", "no_of_lines", "lines"); ok {
				row.lineCount = int(n)
			} else {
				row.lineCount = 1
			}
		},
	})
}

// BusStops ingests bus stops. FrequencyWeight approximates service level;
// sources without one get a neutral weight of 1.
type BusStops struct {
	Src Source
}

func (d *BusStops) Name() string        { return "bus_stops" }
func (d *BusStops) Kind() Kind          { return KindPoint }
func (d *BusStops) SourceLabel() string { return d.Src.Label() }

func (d *BusStops) Run(ctx context.Context, deps Deps) (*Result, error) {
	return runPointPipeline(ctx, deps, pointSpec{
		kind:       model.KindBusStop,
		source:     d.Src,
		nameFields: []string{"description", "stop_name", "name", "bus_stop_n"},
		attrs: func(rec Record, row *pointRow) {
			if w, ok := ExtractFloat(rec, "frequency_weight", "freq_weight", "services"); ok {
				row.frequencyWeight = w
			} else {
				row.frequencyWeight = 1
			}
		},
	})
}
