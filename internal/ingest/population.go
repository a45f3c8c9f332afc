package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/namenorm"
)

// Population ingests per-zone resident counts. This is the only area-keyed
// dataset: rows are matched to zones by normalized name, not coordinates.
// Unmatched rows land in the audit table so statistics never get silently
// attributed to the wrong zone.
type Population struct {
	Src Source
}

func (d *Population) Name() string        { return "population" }
func (d *Population) Kind() Kind          { return KindArea }
func (d *Population) SourceLabel() string { return d.Src.Label() }

// popRow is one source row after header mapping, before name resolution.
type popRow struct {
	Subzone    string `csv:"subzone"`
	Year       int    `csv:"year"`
	Population string `csv:"population"` // counts arrive as "31,250" or "-"
}

func (d *Population) Run(ctx context.Context, deps Deps) (*Result, error) {
	start := time.Now()

	rows, res, err := d.load(ctx, deps)
	if err != nil {
		return nil, err
	}

	var (
		records   []model.PopulationRecord
		unmatched []model.UnmatchedRecord
	)
	seen := make(map[string]int) // zone ID → index, keep the latest year

	for i, row := range rows {
		sourceKey := "row-" + strconv.Itoa(i+1)

		name, ok := namenorm.Normalize(row.Subzone)
		if !ok {
			// Aggregate rows ("Total") and blanks are expected noise.
			res.Invalid++
			continue
		}

		total, ok := parseCount(row.Population)
		if !ok {
			res.Invalid++
			continue
		}

		match, diag, ok := deps.Resolver.Resolve(name)
		if !ok {
			res.AddUnmatched(name)
			payload, _ := json.Marshal(map[string]any{"year": row.Year, "population": total})
			unmatched = append(unmatched, model.UnmatchedRecord{
				Dataset:   d.Name(),
				SourceKey: sourceKey,
				RawName:   row.Subzone,
				Reason:    diag,
				Payload:   payload,
			})
			continue
		}
		res.Matched++

		rec := model.PopulationRecord{ZoneID: match.ZoneID, Year: row.Year, Total: total}
		if prev, dup := seen[match.ZoneID]; dup {
			if rec.Year >= records[prev].Year {
				records[prev] = rec
			}
			continue
		}
		seen[match.ZoneID] = len(records)
		records = append(records, rec)
	}

	if err := deps.Store.RecordUnmatched(ctx, unmatched); err != nil {
		return nil, eris.Wrap(err, "ingest: record unmatched population rows")
	}

	// All qualifying updates apply in one transaction, or none do.
	n, err := deps.Store.UpsertPopulation(ctx, records)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: upsert population")
	}
	res.Upserted = n
	res.Elapsed = time.Since(start)
	return res, nil
}

// load reads the source rows from CSV, or from the first sheet of an XLSX
// workbook when the local fallback is one.
func (d *Population) load(ctx context.Context, deps Deps) ([]popRow, *Result, error) {
	if strings.HasSuffix(strings.ToLower(d.Src.FallbackPath), ".xlsx") && d.Src.URL == "" {
		rows, err := readPopulationXLSX(d.Src.FallbackPath)
		if err != nil {
			return nil, nil, err
		}
		res := NewResult("local")
		res.Fetched = len(rows)
		return rows, res, nil
	}

	data, label, err := d.Src.ReadAll(ctx, deps.Fetcher)
	if err != nil {
		return nil, nil, err
	}

	// Lower-case the header row so the csv tags match regardless of the
	// source's casing.
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		copy(data, bytes.ToLower(data[:idx]))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: read population header")
	}

	var rows []popRow
	for {
		var row popRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: decode population row")
		}
		rows = append(rows, row)
	}

	res := NewResult(label)
	res.Fetched = len(rows)
	return rows, res, nil
}

// readPopulationXLSX reads the first sheet of a population workbook laid
// out as header row + data rows.
func readPopulationXLSX(path string) ([]popRow, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "ingest: stat workbook %s", path)
	}
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: parse workbook %s", path)
	}
	if len(xlFile.Sheets) == 0 {
		return nil, eris.New("ingest: population workbook has no sheets")
	}
	sheet := xlFile.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("ingest: population workbook sheet is empty")
	}

	colIdx := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		colIdx[strings.ToLower(strings.TrimSpace(cell.String()))] = i
	}
	cell := func(row *xlsx.Row, name string) string {
		idx, ok := colIdx[name]
		if !ok || idx >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[idx].String())
	}

	rows := make([]popRow, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		year, _ := strconv.Atoi(cell(row, "year"))
		rows = append(rows, popRow{
			Subzone:    cell(row, "subzone"),
			Year:       year,
			Population: cell(row, "population"),
		})
	}
	return rows, nil
}

// parseCount parses a population count that may carry thousands separators
// or be a placeholder dash.
func parseCount(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
