package forecast

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/model"
)

var reserved = map[string]struct{}{
	"ds": {}, "y": {}, "t": {}, "trend": {}, "seasonal": {}, "seasonality": {},
	"holidays": {}, "holiday": {}, "mcmc_samples": {}, "uncertainty_samples": {},
	"yhat": {}, "yhat_lower": {}, "yhat_upper": {}, "cap": {}, "floor": {},
	"additive_terms": {}, "multiplicative_terms": {}, "extra_regressors": {},
}

// IsReserved reports whether name collides with provider vocabulary.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// ReservedNames returns the provider vocabulary, sorted.
func ReservedNames() []string {
	out := make([]string, 0, len(reserved))
	for k := range reserved {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CheckReserved fails with model.ErrReservedName naming every colliding factor.
func CheckReserved(factors []string) error {
	var bad []string
	for _, f := range factors {
		if IsReserved(f) {
			bad = append(bad, f)
		}
	}
	if len(bad) > 0 {
		return eris.Wrapf(model.ErrReservedName, "forecast: rename factor(s) %s", strings.Join(bad, ", "))
	}
	return nil
}
