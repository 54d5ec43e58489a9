package model

// IssueCategory classifies a data quality finding.
type IssueCategory string

const (
	IssueInsufficientData IssueCategory = "insufficient_data"
	IssueOutlier          IssueCategory = "outlier"
	IssueNonPositiveValue IssueCategory = "non_positive_value"
	IssueSequenceGap      IssueCategory = "sequence_gap"
	IssueSuddenJump       IssueCategory = "sudden_jump"
)

// Severity ranks how strongly an issue should be surfaced.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// QualityIssue is a single advisory finding. Issues are never fatal.
type QualityIssue struct {
	Category       IssueCategory `json:"category"`
	Severity       Severity      `json:"severity"`
	Message        string        `json:"message"`
	AffectedPoints []int         `json:"affected_points"`
	Suggestion     string        `json:"suggestion"`
}

// QualityStatus is the tier derived from the quality score.
type QualityStatus string

const (
	QualityExcellent QualityStatus = "excellent"
	QualityGood      QualityStatus = "good"
	QualityFair      QualityStatus = "fair"
	QualityPoor      QualityStatus = "poor"
)

// StatusForScore maps a 0-100 score to its tier.
func StatusForScore(score int) QualityStatus {
	switch {
	case score >= 90:
		return QualityExcellent
	case score >= 70:
		return QualityGood
	case score >= 50:
		return QualityFair
	default:
		return QualityPoor
	}
}

// QualityReport summarises the defects detected in a series.
type QualityReport struct {
	Score  int            `json:"score"`
	Status QualityStatus  `json:"status"`
	Issues []QualityIssue `json:"issues"`
}

// HighestSeverity returns the most severe issue level, or "" when the
// report is clean.
func (r QualityReport) HighestSeverity() Severity {
	var top Severity
	for _, is := range r.Issues {
		if is.Severity.rank() > top.rank() {
			top = is.Severity
		}
	}
	return top
}

// IssuesOf returns the issues in the given category.
func (r QualityReport) IssuesOf(cat IssueCategory) []QualityIssue {
	var out []QualityIssue
	for _, is := range r.Issues {
		if is.Category == cat {
			out = append(out, is)
		}
	}
	return out
}
