package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures ReadXLSXBytes.
type XLSXOptions struct {
	// SheetName selects a sheet. Empty takes the first sheet with data.
	SheetName string

	// DateLayout renders date-formatted cells. Empty keeps the cell's own
	// display text.
	DateLayout string

	// MaxRows fails the read once exceeded. Zero means no limit.
	MaxRows int
}

// ReadXLSXBytes parses an in-memory workbook, such as an uploaded file,
// and returns its non-blank rows.
func ReadXLSXBytes(data []byte, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open binary")
	}
	sheet, err := pickSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		blank := true
		for i, cell := range row.Cells {
			cells[i] = cellText(cell, opts.DateLayout, f.Date1904)
			if cells[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		if opts.MaxRows > 0 && len(rows) == opts.MaxRows {
			return nil, eris.Errorf("xlsx: more than %d rows", opts.MaxRows)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	for _, sheet := range f.Sheets {
		if len(sheet.Rows) > 0 {
			return sheet, nil
		}
	}
	return nil, eris.New("xlsx: workbook has no data")
}

// cellText renders numeric cells carrying a date format with layout so
// spreadsheet dates read the same as typed ones.
func cellText(cell *xlsx.Cell, layout string, date1904 bool) string {
	if layout != "" && cell.Type() == xlsx.CellTypeNumeric && isDateFormat(cell.GetNumberFormat()) {
		if t, err := cell.GetTime(date1904); err == nil {
			return t.Format(layout)
		}
	}
	return cell.String()
}

// isDateFormat reports whether an Excel number format shows a calendar
// date. Quoted literals and bracketed sections are ignored.
func isDateFormat(format string) bool {
	var sb strings.Builder
	inQuote, inBracket := false, false
	for _, c := range strings.ToLower(format) {
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[':
			inBracket = true
		case c == ']':
			inBracket = false
		case !inBracket:
			sb.WriteRune(c)
		}
	}
	f := sb.String()
	return strings.ContainsRune(f, 'd') && strings.ContainsRune(f, 'y')
}
