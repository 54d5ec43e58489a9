// Package ingest loads raw case-count tables from a hosted spreadsheet,
// an uploaded file or the synthetic sample generator.
package ingest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/fetcher"
	"github.com/sells-group/case-forecast/internal/model"
)

// Required column names.
const (
	ColEndDate = "end_date"
	ColCases   = "cases"
	ColWeekNum = "week_num"
)

// MaxRows bounds the rows read from any one table, header included.
const MaxRows = 10000

// DateLayout is the day/month/year layout used by every source.
const DateLayout = "02/01/2006"

// Format is a tabular file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFor picks a format from a file name, defaulting to CSV.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// RawTable is a loosely typed table: a normalised header and string rows.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Source yields a RawTable and a description of where it came from.
// Describe reports the same description without loading.
type Source interface {
	Load(ctx context.Context) (*RawTable, model.SourceInfo, error)
	Describe() model.SourceInfo
}

// NewRawTable splits rows into header and body. Header cells are trimmed
// and lower-cased.
func NewRawTable(rows [][]string) (*RawTable, error) {
	if len(rows) == 0 {
		return nil, eris.Wrap(model.ErrIngestion, "ingest: table has no header row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return &RawTable{Header: header, Rows: rows[1:]}, nil
}

// Column returns the index of name in the header, or -1.
func (t *RawTable) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Value returns the trimmed cell at row i for column name. Missing columns
// and short rows yield "".
func (t *RawTable) Value(i int, name string) string {
	col := t.Column(name)
	if col < 0 || i >= len(t.Rows) || col >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][col])
}

// RequireColumns checks that end_date, cases and week_num are present.
func (t *RawTable) RequireColumns() error {
	var missing []string
	for _, c := range []string{ColEndDate, ColCases, ColWeekNum} {
		if t.Column(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(model.ErrIngestion, "ingest: missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Parse decodes data in the given format into a RawTable.
func Parse(ctx context.Context, data []byte, format Format) (*RawTable, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatXLSX:
		rows, err = fetcher.ReadXLSXBytes(data, fetcher.XLSXOptions{DateLayout: DateLayout, MaxRows: MaxRows})
	case FormatCSV, "":
		rows, err = fetcher.ReadCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true, MaxRows: MaxRows})
	default:
		return nil, eris.Wrapf(model.ErrIngestion, "ingest: unsupported format %q", format)
	}
	if err != nil {
		return nil, model.Classify(model.ErrIngestion, err, "ingest: parse "+string(format))
	}

	table, err := NewRawTable(rows)
	if err != nil {
		return nil, err
	}
	if err := table.RequireColumns(); err != nil {
		return nil, err
	}
	return table, nil
}
