package model

import "sort"

// RegressorMode is how an external factor enters the model.
type RegressorMode string

const (
	ModeAdditive       RegressorMode = "additive"
	ModeMultiplicative RegressorMode = "multiplicative"
)

// FactorSpec describes a recognised external factor column.
type FactorSpec struct {
	Name       string        `json:"name"`
	Mode       RegressorMode `json:"mode"`
	PriorScale float64       `json:"prior_scale"`
	Binary     bool          `json:"binary"`
}

// Recognised factor columns. Unlisted names fall back to DefaultFactorSpec.
const (
	FactorTemperature       = "temperature"
	FactorHumidity          = "humidity"
	FactorHolidayFlag       = "holiday_flag"
	FactorCampaign          = "campaign"
	FactorOutbreakIndex     = "outbreak_index"
	FactorPopulationDensity = "population_density"
	FactorSchoolClosed      = "school_closed"
	FactorTourists          = "tourists"
)

// LegacyHolidayColumn is the old column name that collides with the
// provider's holiday vocabulary; it is renamed to FactorHolidayFlag.
const LegacyHolidayColumn = "holiday"

var factorSpecs = map[string]FactorSpec{
	FactorTemperature:       {Name: FactorTemperature, Mode: ModeAdditive, PriorScale: 0.5},
	FactorHumidity:          {Name: FactorHumidity, Mode: ModeAdditive, PriorScale: 0.3},
	FactorHolidayFlag:       {Name: FactorHolidayFlag, Mode: ModeAdditive, PriorScale: 1.0, Binary: true},
	FactorCampaign:          {Name: FactorCampaign, Mode: ModeMultiplicative, PriorScale: 0.8, Binary: true},
	FactorOutbreakIndex:     {Name: FactorOutbreakIndex, Mode: ModeMultiplicative, PriorScale: 1.5},
	FactorPopulationDensity: {Name: FactorPopulationDensity, Mode: ModeAdditive, PriorScale: 0.1},
	FactorSchoolClosed:      {Name: FactorSchoolClosed, Mode: ModeAdditive, PriorScale: 0.7, Binary: true},
	FactorTourists:          {Name: FactorTourists, Mode: ModeAdditive, PriorScale: 0.4},
}

// DefaultFactorSpec returns the regressor defaults for an unrecognised factor.
func DefaultFactorSpec(name string) FactorSpec {
	return FactorSpec{Name: name, Mode: ModeAdditive, PriorScale: 0.5}
}

// LookupFactor returns the spec for name and whether it is recognised.
func LookupFactor(name string) (FactorSpec, bool) {
	spec, ok := factorSpecs[name]
	return spec, ok
}

// SpecFor returns the recognised spec for name or the default.
func SpecFor(name string) FactorSpec {
	if spec, ok := factorSpecs[name]; ok {
		return spec
	}
	return DefaultFactorSpec(name)
}

// IsRecognisedFactor reports whether name is a known factor column.
func IsRecognisedFactor(name string) bool {
	_, ok := factorSpecs[name]
	return ok
}

// RecognisedFactors returns the known factor names, sorted.
func RecognisedFactors() []string {
	names := make([]string, 0, len(factorSpecs))
	for k := range factorSpecs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
