// Package catalogio reads and writes catalogs as CSV, XLSX and shapefiles.
package catalogio

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV records and sends them to a channel.
// Caller must consume the returned record channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // width is checked against the header by the caller

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV reads a catalog whose first record is the header.
func ReadCSV(ctx context.Context, r io.Reader, name string, opts CSVOptions) (*catalog.Catalog, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := StreamCSV(ctx, r, opts)

	var (
		cat    *catalog.Catalog
		rowErr error
		line   int
	)
	for record := range rowCh {
		line++
		if rowErr != nil {
			continue
		}
		if cat == nil {
			cols, err := headerColumns(record)
			if err != nil {
				rowErr = err
				cancel()
				continue
			}
			cat = catalog.New(name, cols...)
			continue
		}
		if err := cat.Append(fitWidth(record, len(cat.Columns))...); err != nil {
			rowErr = eris.Wrapf(err, "csv: record %d", line)
			cancel()
		}
	}
	if rowErr != nil {
		return nil, rowErr
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, eris.Errorf("csv: %s has no header row", name)
	}
	return cat, nil
}

// WriteCSV writes the header and every row of cat.
func WriteCSV(w io.Writer, cat *catalog.Catalog) error {
	return writeDelimited(w, cat, ',')
}

func writeDelimited(w io.Writer, cat *catalog.Catalog, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(cat.Columns); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	record := make([]string, len(cat.Columns))
	for i, r := range cat.Rows {
		for j, col := range cat.Columns {
			record[j] = r[col]
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "csv: write row %d", i)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "csv: flush")
	}
	return nil
}

// headerColumns names blank header cells (pandas writes its index column
// with an empty name) and rejects duplicates.
func headerColumns(record []string) ([]string, error) {
	cols := make([]string, len(record))
	seen := make(map[string]bool, len(record))
	for i, h := range record {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if seen[h] {
			return nil, eris.Errorf("catalogio: duplicate column %q", h)
		}
		seen[h] = true
		cols[i] = h
	}
	return cols, nil
}

// fitWidth pads short records with empty values. Long records are returned
// unchanged so the width check reports them.
func fitWidth(record []string, width int) []string {
	if len(record) >= width {
		return record
	}
	out := make([]string, width)
	copy(out, record)
	return out
}
