package forecast

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/case-forecast/internal/model"
)

// ResolveFutureValues picks the single value each factor takes over the
// whole horizon. Manual mode requires a value for every factor; the other
// modes ignore manual.
func ResolveFutureValues(s model.Series, factors []string, mode model.FutureMode, manual map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(factors))
	if len(factors) == 0 {
		return out, nil
	}
	if len(s) == 0 {
		return nil, eris.Wrap(model.ErrEmptySeries, "forecast: resolve future values")
	}
	for _, f := range factors {
		if !s.HasFactor(f) {
			return nil, eris.Wrapf(model.ErrInvalidRequest, "forecast: factor %q not in series", f)
		}
		switch mode {
		case model.FutureMean, "":
			out[f] = stat.Mean(s.Factor(f), nil)
		case model.FutureLast:
			out[f] = s[len(s)-1].Factors[f]
		case model.FutureManual:
			v, ok := manual[f]
			if !ok {
				return nil, eris.Wrapf(model.ErrInvalidRequest, "forecast: manual value missing for %q", f)
			}
			out[f] = v
		default:
			return nil, eris.Wrapf(model.ErrInvalidRequest, "forecast: unknown future mode %q", mode)
		}
	}
	return out, nil
}
