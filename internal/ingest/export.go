package ingest

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Write encodes t as CSV or as a single-sheet XLSX workbook.
func Write(w io.Writer, t *RawTable, format Format) error {
	rows := make([][]string, 0, len(t.Rows)+1)
	rows = append(rows, t.Header)
	rows = append(rows, t.Rows...)

	switch format {
	case FormatXLSX:
		f := xlsx.NewFile()
		sheet, err := f.AddSheet("cases")
		if err != nil {
			return eris.Wrap(err, "ingest: add xlsx sheet")
		}
		for _, r := range rows {
			row := sheet.AddRow()
			for _, v := range r {
				row.AddCell().SetString(v)
			}
		}
		if err := f.Write(w); err != nil {
			return eris.Wrap(err, "ingest: write xlsx")
		}
		return nil
	default:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			return eris.Wrap(err, "ingest: write csv")
		}
		return nil
	}
}
