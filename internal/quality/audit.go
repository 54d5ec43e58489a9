// Package quality scores a cleaned series and lists its data defects.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/case-forecast/internal/model"
)

// Scoring constants.
const (
	MinWeeks             = 8
	insufficientPenalty  = 30
	outlierPenaltyEach   = 5
	outlierPenaltyMax    = 20
	nonPositivePenalty   = 50
	iqrFence             = 1.5
	jumpStdDevMultiplier = 2
)

// Audit computes the QualityReport for s. It is a pure function of s.
func Audit(s model.Series) model.QualityReport {
	s = s.ByWeek()
	score := 100
	var issues []model.QualityIssue

	if len(s) < MinWeeks {
		score -= insufficientPenalty
		issues = append(issues, model.QualityIssue{
			Category:   model.IssueInsufficientData,
			Severity:   model.SeverityWarning,
			Message:    fmt.Sprintf("only %d weeks of data; at least %d are recommended", len(s), MinWeeks),
			Suggestion: "collect more weekly history before relying on the forecast",
		})
	}

	if issue, n := outliers(s); n > 0 {
		score -= min(outlierPenaltyMax, outlierPenaltyEach*n)
		issues = append(issues, issue)
	}

	if issue, ok := nonPositive(s); ok {
		score -= nonPositivePenalty
		issues = append(issues, issue)
	}

	if issue, ok := gaps(s); ok {
		issues = append(issues, issue)
	}

	if issue, ok := jumps(s); ok {
		issues = append(issues, issue)
	}

	score = max(score, 0)
	return model.QualityReport{
		Score:  score,
		Status: model.StatusForScore(score),
		Issues: issues,
	}
}

func outliers(s model.Series) (model.QualityIssue, int) {
	if len(s) == 0 {
		return model.QualityIssue{}, 0
	}
	sorted := s.Cases()
	sort.Float64s(sorted)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	lo, hi := q1-iqrFence*iqr, q3+iqrFence*iqr

	var weeks []int
	var parts []string
	for _, p := range s {
		switch {
		case p.Cases > hi:
			weeks = append(weeks, p.WeekIndex)
			parts = append(parts, fmt.Sprintf("week %d (%g, above normal range)", p.WeekIndex, p.Cases))
		case p.Cases < lo:
			weeks = append(weeks, p.WeekIndex)
			parts = append(parts, fmt.Sprintf("week %d (%g, below normal range)", p.WeekIndex, p.Cases))
		}
	}
	if len(weeks) == 0 {
		return model.QualityIssue{}, 0
	}
	return model.QualityIssue{
		Category:       model.IssueOutlier,
		Severity:       model.SeverityWarning,
		Message:        fmt.Sprintf("%d outlier(s) outside [%.2f, %.2f]: %s", len(weeks), lo, hi, strings.Join(parts, "; ")),
		AffectedPoints: weeks,
		Suggestion:     "check these weeks for reporting errors or one-off events",
	}, len(weeks)
}

func nonPositive(s model.Series) (model.QualityIssue, bool) {
	var weeks []int
	for _, p := range s {
		if p.Cases <= 0 {
			weeks = append(weeks, p.WeekIndex)
		}
	}
	if len(weeks) == 0 {
		return model.QualityIssue{}, false
	}
	return model.QualityIssue{
		Category:       model.IssueNonPositiveValue,
		Severity:       model.SeverityError,
		Message:        fmt.Sprintf("%d week(s) with zero or negative case counts: %s", len(weeks), joinInts(weeks)),
		AffectedPoints: weeks,
		Suggestion:     "correct or remove non-positive case counts",
	}, true
}

func gaps(s model.Series) (model.QualityIssue, bool) {
	var weeks []int
	var parts []string
	for i := 1; i < len(s); i++ {
		from, to := s[i-1].WeekIndex, s[i].WeekIndex
		if to-from > 1 {
			weeks = append(weeks, from, to)
			parts = append(parts, fmt.Sprintf("(%d, %d)", from, to))
		}
	}
	if len(parts) == 0 {
		return model.QualityIssue{}, false
	}
	return model.QualityIssue{
		Category:       model.IssueSequenceGap,
		Severity:       model.SeverityWarning,
		Message:        fmt.Sprintf("%d gap(s) in the week sequence: %s", len(parts), strings.Join(parts, ", ")),
		AffectedPoints: weeks,
		Suggestion:     "fill in the missing weeks so the model sees a regular series",
	}, true
}

func jumps(s model.Series) (model.QualityIssue, bool) {
	if len(s) < 3 {
		return model.QualityIssue{}, false
	}
	diffs := make([]float64, len(s)-1)
	for i := 1; i < len(s); i++ {
		diffs[i-1] = math.Abs(s[i].Cases - s[i-1].Cases)
	}
	mean, std := stat.MeanStdDev(diffs, nil)
	threshold := mean + jumpStdDevMultiplier*std

	var weeks []int
	for i, d := range diffs {
		if d > threshold {
			weeks = append(weeks, s[i+1].WeekIndex)
		}
	}
	if len(weeks) == 0 {
		return model.QualityIssue{}, false
	}
	return model.QualityIssue{
		Category:       model.IssueSuddenJump,
		Severity:       model.SeverityInfo,
		Message:        fmt.Sprintf("sudden change above %.2f cases/week at week(s) %s", threshold, joinInts(weeks)),
		AffectedPoints: weeks,
		Suggestion:     "confirm whether these changes reflect real outbreaks or reporting changes",
	}, true
}

// Quantile returns the p-quantile of sorted using linear interpolation
// between closest ranks, h = (n-1)p.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
