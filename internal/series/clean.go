// Package series turns a raw ingested table into a validated, date-ordered
// weekly Series.
package series

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-forecast/internal/ingest"
	"github.com/sells-group/case-forecast/internal/model"
)

// parseLayout accepts one- or two-digit day and month.
const parseLayout = "2/1/2006"

// Cleaned is the output of Clean.
type Cleaned struct {
	Series  model.Series
	Dropped int
	// Renamed lists legacy columns mapped to their accepted alias.
	Renamed map[string]string
}

// Clean parses every row of t. Rows whose end_date, cases or week_num
// cannot be parsed are dropped and counted. Recognised factor columns are
// coerced to numbers; unparseable factor cells take the column mean of the
// kept rows. The result is sorted by date, ties keeping input order. t is
// not modified.
func Clean(t *ingest.RawTable) (*Cleaned, error) {
	if t == nil {
		return nil, eris.Wrap(model.ErrIngestion, "series: nil table")
	}
	if err := t.RequireColumns(); err != nil {
		return nil, err
	}

	columns, renamed := factorColumns(t.Header)

	type pending struct {
		point   model.ObservedPoint
		raw     map[string]float64
		missing map[string]bool
	}

	rows := make([]pending, 0, len(t.Rows))
	dropped := 0
	for i := range t.Rows {
		date, err := parseDate(t.Value(i, ingest.ColEndDate))
		if err != nil {
			dropped++
			continue
		}
		cases, err := parseNumber(t.Value(i, ingest.ColCases))
		if err != nil {
			dropped++
			continue
		}
		week, err := parseWeek(t.Value(i, ingest.ColWeekNum))
		if err != nil {
			dropped++
			continue
		}

		p := pending{
			point: model.ObservedPoint{WeekIndex: week, Date: date, Cases: cases},
		}
		if len(columns) > 0 {
			p.raw = make(map[string]float64, len(columns))
			p.missing = make(map[string]bool)
			for name, col := range columns {
				v, err := parseNumber(cell(t.Rows[i], col))
				if err != nil {
					p.missing[name] = true
					continue
				}
				p.raw[name] = v
			}
		}
		rows = append(rows, p)
	}

	if dropped > 0 {
		zap.L().Warn("series: dropped unparseable rows",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(rows)),
		)
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(model.ErrEmptySeries, "series: no valid rows out of %d", len(t.Rows))
	}

	means := make(map[string]float64, len(columns))
	for name := range columns {
		var sum float64
		var n int
		for _, p := range rows {
			if !p.missing[name] {
				sum += p.raw[name]
				n++
			}
		}
		if n > 0 {
			means[name] = sum / float64(n)
		}
	}

	out := make(model.Series, len(rows))
	for i, p := range rows {
		pt := p.point
		if len(columns) > 0 {
			pt.Factors = make(map[string]float64, len(columns))
			for name := range columns {
				if p.missing[name] {
					pt.Factors[name] = means[name]
				} else {
					pt.Factors[name] = p.raw[name]
				}
			}
		}
		out[i] = pt
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	return &Cleaned{Series: out, Dropped: dropped, Renamed: renamed}, nil
}

// factorColumns maps recognised factor names to their header index. A
// legacy "holiday" column stands in for holiday_flag when the latter is
// absent.
func factorColumns(header []string) (map[string]int, map[string]string) {
	columns := make(map[string]int)
	for i, h := range header {
		if model.IsRecognisedFactor(h) {
			if _, seen := columns[h]; !seen {
				columns[h] = i
			}
		}
	}

	renamed := map[string]string{}
	if _, ok := columns[model.FactorHolidayFlag]; !ok {
		for i, h := range header {
			if h == model.LegacyHolidayColumn {
				columns[model.FactorHolidayFlag] = i
				renamed[model.LegacyHolidayColumn] = model.FactorHolidayFlag
				zap.L().Info("series: renamed legacy column",
					zap.String("from", model.LegacyHolidayColumn),
					zap.String("to", model.FactorHolidayFlag),
				)
				break
			}
		}
	}
	return columns, renamed
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(parseLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, eris.Wrap(err, "series: parse end_date")
	}
	return d, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("series: empty number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrap(err, "series: parse number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("series: non-finite number %q", s)
	}
	return v, nil
}

func parseWeek(s string) (int, error) {
	v, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, eris.Errorf("series: week_num %q is not an integer", s)
	}
	return int(v), nil
}
