package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/case-forecast/internal/model"
)

// Format selects how a Result is written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", eris.Errorf("report: unknown format %q (want table, json or yaml)", s)
	}
}

// Document is the full structured view of a Result for machine formats.
type Document struct {
	Result     *model.Result `json:"result" yaml:"result"`
	History    Stats         `json:"history_stats" yaml:"history_stats"`
	Forecast   Stats         `json:"forecast_stats" yaml:"forecast_stats"`
	Trend      Trend         `json:"trend" yaml:"trend"`
	Comparison []BaselineRow `json:"baseline_comparison" yaml:"baseline_comparison"`
}

// NewDocument derives the statistics for r.
func NewDocument(r *model.Result) Document {
	return Document{
		Result:     r,
		History:    Describe(r.Observations.Cases()),
		Forecast:   Describe(estimates(r.Forecast)),
		Trend:      AnalyzeTrend(r.Observations, r.Forecast),
		Comparison: CompareBaseline(r.Observations, r.Forecast),
	}
}

// Write renders r to w in format f.
func Write(w io.Writer, r *model.Result, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(jsonSafe(NewDocument(r))); err != nil {
			return eris.Wrap(err, "report: encode json")
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(NewDocument(r)); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return eris.Wrap(enc.Close(), "report: close yaml")
	case FormatTable, "":
		WriteForecastTable(w, r)
		_, _ = fmt.Fprintln(w)
		WriteQualityTable(w, r.Quality)
		_, _ = fmt.Fprintln(w)
		_, err := io.WriteString(w, Narrative(r, language.English))
		return eris.Wrap(err, "report: write narrative")
	default:
		return eris.Errorf("report: unknown format %q", f)
	}
}

// jsonSafe zeroes the NaN a zero historical mean leaves in the trend,
// which encoding/json rejects.
func jsonSafe(d Document) Document {
	if math.IsNaN(d.Trend.ChangePct) {
		d.Trend.ChangePct = 0
	}
	return d
}

// WriteForecastTable writes one row per forecast week.
func WriteForecastTable(out io.Writer, r *model.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WEEK\tDATE\tFORECAST\tLOWER\tUPPER\tBASELINE\tDIFF")
	_, _ = fmt.Fprintln(w, "----\t----\t--------\t-----\t-----\t--------\t----")
	for _, row := range CompareBaseline(r.Observations, r.Forecast) {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%+.1f\n",
			row.WeekIndex,
			row.Date.Format("2006-01-02"),
			row.PointEstimate,
			row.LowerBound,
			row.UpperBound,
			row.Baseline,
			row.Difference,
		)
	}
	_ = w.Flush()
}

// WriteQualityTable writes the score and one row per issue.
func WriteQualityTable(out io.Writer, q model.QualityReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Quality score:\t%d (%s)\n", q.Score, q.Status)
	if len(q.Issues) == 0 {
		_, _ = fmt.Fprintln(w, "Issues:\tnone")
		_ = w.Flush()
		return
	}
	_, _ = fmt.Fprintln(w, "SEVERITY\tCATEGORY\tWEEKS\tMESSAGE")
	for _, is := range q.Issues {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", is.Severity, is.Category, weekList(is.AffectedPoints), is.Message)
	}
	_ = w.Flush()
}

func weekList(weeks []int) string {
	const maxShown = 6
	parts := make([]string, 0, min(len(weeks), maxShown))
	for i, wk := range weeks {
		if i == maxShown {
			parts = append(parts, fmt.Sprintf("+%d", len(weeks)-maxShown))
			break
		}
		parts = append(parts, fmt.Sprint(wk))
	}
	return strings.Join(parts, ",")
}
