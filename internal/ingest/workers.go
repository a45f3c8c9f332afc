package ingest

import (
	"sync"
)

// workerOut pairs one worker's kept rows with its private counters.
type workerOut[R any] struct {
	rows []R
	res  *Result
}

// fanOut runs fn over the records on up to `workers` goroutines. Each
// worker writes its own accumulator; the merged Result and the kept rows
// (source order preserved) come back once every worker is done.
func fanOut[R any](records []Record, workers int, fn func(Record, *Result) (R, bool)) ([]R, *Result) {
	merged := NewResult("")
	if len(records) == 0 {
		return nil, merged
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(records) {
		workers = len(records)
	}

	// Chunk by contiguous ranges so per-chunk output order is stable.
	chunkSize := (len(records) + workers - 1) / workers
	outs := make([]workerOut[R], workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		hi := min(lo+chunkSize, len(records))
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			res := NewResult("")
			rows := make([]R, 0, hi-lo)
			for _, rec := range records[lo:hi] {
				if row, ok := fn(rec, res); ok {
					rows = append(rows, row)
				}
			}
			outs[w] = workerOut[R]{rows: rows, res: res}
		}(w, lo, hi)
	}
	wg.Wait()

	var all []R
	for _, out := range outs {
		if out.res != nil {
			merged.Merge(out.res)
		}
		all = append(all, out.rows...)
	}
	return all, merged
}
