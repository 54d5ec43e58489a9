package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	// Delimiter is sniffed from the first line when zero.
	Delimiter  rune
	LazyQuotes bool
	TrimSpace  bool

	// MaxRows fails the read once exceeded. Zero means no limit.
	MaxRows int
}

// candidateDelimiters are tried in order; ties keep the earlier one.
var candidateDelimiters = []rune{',', ';', '\t'}

// ReadCSV returns every row of r, header included. A leading UTF-8 or
// UTF-16 byte order mark is consumed and rows may have differing widths.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([][]string, error) {
	br := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))

	delim := opts.Delimiter
	if delim == 0 {
		first, err := br.Peek(4096)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, eris.Wrap(err, "csv: peek header")
		}
		delim = sniffDelimiter(string(first))
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if opts.MaxRows > 0 && len(rows) == opts.MaxRows {
			return nil, eris.Errorf("csv: more than %d rows", opts.MaxRows)
		}
		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		rows = append(rows, record)
	}
}

// sniffDelimiter picks the candidate that occurs most often, outside
// quotes, on the first line of sample.
func sniffDelimiter(sample string) rune {
	line, _, _ := strings.Cut(sample, "\n")
	counts := make(map[rune]int, len(candidateDelimiters))
	quoted := false
	for _, c := range line {
		if c == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			counts[c]++
		}
	}

	best := candidateDelimiters[0]
	for _, d := range candidateDelimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}
