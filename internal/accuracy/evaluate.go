package accuracy

import (
	"sort"
	"time"

	"github.com/sells-group/case-forecast/internal/model"
)

// Evaluate back-tests fitted against s. Fitted points are kept when their
// date exactly equals an observed date; unless that keeps exactly len(s)
// points the report is unavailable. Metric failures also yield an
// unavailable report rather than an error.
func Evaluate(fitted []model.FittedPoint, s model.Series) model.AccuracyReport {
	if len(s) == 0 {
		return unavailable("no observations")
	}

	observed := make(map[int64]struct{}, len(s))
	for _, p := range s {
		observed[dateKey(p.Date)] = struct{}{}
	}

	aligned := make([]model.FittedPoint, 0, len(s))
	for _, f := range fitted {
		if _, ok := observed[dateKey(f.Date)]; ok {
			aligned = append(aligned, f)
		}
	}
	if len(aligned) != len(s) {
		return unavailable("fitted dates do not match observed dates")
	}
	sort.SliceStable(aligned, func(i, j int) bool { return aligned[i].Date.Before(aligned[j].Date) })

	ordered := s.Clone()
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	actual := ordered.Cases()
	predicted := make([]float64, len(aligned))
	for i, f := range aligned {
		predicted[i] = f.Value
	}

	mae, err := MAE(actual, predicted)
	if err != nil {
		return unavailable(err.Error())
	}
	rmse, _ := RMSE(actual, predicted)
	r2, _ := RSquared(actual, predicted)
	mape, err := MAPE(actual, predicted)
	if err != nil {
		return unavailable("MAPE undefined: a historical week has zero cases")
	}

	residuals := make([]model.Residual, len(actual))
	for i := range actual {
		residuals[i] = model.Residual{
			Date:      ordered[i].Date,
			Predicted: predicted[i],
			Residual:  actual[i] - predicted[i],
		}
	}

	return model.AccuracyReport{
		Available:   true,
		MAE:         mae,
		RMSE:        rmse,
		MAPEPercent: mape,
		RSquared:    r2,
		Tier:        model.TierForMAPE(mape),
		Residuals:   residuals,
	}
}

func unavailable(reason string) model.AccuracyReport {
	return model.AccuracyReport{Available: false, Reason: model.ErrAccuracyCompute.Error() + ": " + reason}
}

func dateKey(t time.Time) int64 {
	return t.UTC().UnixNano()
}
