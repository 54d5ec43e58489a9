// Package model defines the domain types shared by the forecasting pipeline.
package model

import (
	"sort"
	"time"
)

// ObservedPoint is one weekly observation of reported cases.
type ObservedPoint struct {
	WeekIndex int                `json:"week_index"`
	Date      time.Time          `json:"date"`
	Cases     float64            `json:"cases"`
	Factors   map[string]float64 `json:"factors,omitempty"`
}

// Series is an ordered (by Date ascending) sequence of observations.
type Series []ObservedPoint

// Clone returns a deep copy so downstream stages never share factor maps
// with the caller.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	for i, p := range s {
		out[i] = p
		if p.Factors != nil {
			f := make(map[string]float64, len(p.Factors))
			for k, v := range p.Factors {
				f[k] = v
			}
			out[i].Factors = f
		}
	}
	return out
}

// Cases returns the case counts in series order.
func (s Series) Cases() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Cases
	}
	return out
}

// Dates returns the observation dates in series order.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// Factor returns the named factor column in series order.
func (s Series) Factor(name string) []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Factors[name]
	}
	return out
}

// FactorNames returns the sorted factor keys present on the series.
func (s Series) FactorNames() []string {
	if len(s) == 0 {
		return nil
	}
	names := make([]string, 0, len(s[0].Factors))
	for k := range s[0].Factors {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// HasFactor reports whether every point carries the named factor.
func (s Series) HasFactor(name string) bool {
	if len(s) == 0 {
		return false
	}
	for _, p := range s {
		if _, ok := p.Factors[name]; !ok {
			return false
		}
	}
	return true
}

// MaxWeek returns the largest week index, or 0 for an empty series.
func (s Series) MaxWeek() int {
	maxWeek := 0
	for i, p := range s {
		if i == 0 || p.WeekIndex > maxWeek {
			maxWeek = p.WeekIndex
		}
	}
	return maxWeek
}

// ByWeek returns a copy ordered by week index.
func (s Series) ByWeek() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].WeekIndex < out[j].WeekIndex })
	return out
}
