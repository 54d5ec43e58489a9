package report

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/case-forecast/internal/model"
)

// Narrative writes a plain-English summary of r. Numbers are formatted for
// tag, for example thousands separators for language.English.
func Narrative(r *model.Result, tag language.Tag) string {
	p := message.NewPrinter(tag)
	var b strings.Builder

	p.Fprintf(&b, "Loaded %d weeks of history", len(r.Observations))
	if r.DroppedRows > 0 {
		p.Fprintf(&b, " (%d malformed rows dropped)", r.DroppedRows)
	}
	p.Fprintf(&b, ". Data quality is %s (score %d/100", r.Quality.Status, r.Quality.Score)
	if n := len(r.Quality.Issues); n > 0 {
		p.Fprintf(&b, ", %d issue(s) flagged", n)
	}
	b.WriteString(").\n")

	if len(r.Forecast) == 0 {
		b.WriteString("No forecast was produced.\n")
		return b.String()
	}

	t := AnalyzeTrend(r.Observations, r.Forecast)
	p.Fprintf(&b, "Over the next %d weeks cases are expected to average %.0f per week", len(r.Forecast), t.ForecastMean)
	if !math.IsNaN(t.ChangePct) {
		word := "above"
		if t.ChangePct < 0 {
			word = "below"
		}
		p.Fprintf(&b, ", %.1f%% %s the historical mean of %.0f", math.Abs(t.ChangePct), word, t.HistoricalMean)
	}
	p.Fprintf(&b, ", and %s across the horizon.\n", t.Direction)

	last := r.Forecast[len(r.Forecast)-1]
	p.Fprintf(&b, "By week %d the estimate is %.0f (range %.0f to %.0f); the recent %d-week baseline is %.0f.\n",
		last.WeekIndex, last.PointEstimate, last.LowerBound, last.UpperBound, 4, r.Baseline)

	switch {
	case r.Validation != nil:
		p.Fprintf(&b, "Hold-out check on the last %d weeks: MAE %.1f, MAPE %.1f%%.\n",
			r.Validation.TestSize, r.Validation.MAE, r.Validation.MAPEPercent)
	default:
		b.WriteString("Hold-out validation was not available.\n")
	}
	if r.Accuracy.Available {
		p.Fprintf(&b, "In-sample accuracy is %s (MAPE %.1f%%, R² %.2f).\n",
			tierLabel(r.Accuracy.Tier), r.Accuracy.MAPEPercent, r.Accuracy.RSquared)
	}

	for _, f := range r.Flags {
		b.WriteString("Note: " + f.Message + ".\n")
	}
	for _, w := range r.Warnings {
		b.WriteString("Warning: " + w + ".\n")
	}
	return b.String()
}

func tierLabel(t model.AccuracyTier) string {
	switch t {
	case model.TierVeryGood:
		return "very good"
	case model.TierGood:
		return "good"
	case model.TierNeedsImprovement:
		return "in need of improvement"
	default:
		return string(t)
	}
}
