package ingest

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/sells-group/case-forecast/internal/model"
)

// DefaultSampleStart is the first week-ending date of generated samples.
var DefaultSampleStart = time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC)

// SampleSource generates a synthetic weekly series: a yearly sinusoid
// around a base level plus Gaussian noise. The same seed always yields the
// same table.
type SampleSource struct {
	Weeks       int
	Seed        uint64
	WithFactors bool
	Start       time.Time
}

// Load generates the table.
func (s SampleSource) Load(_ context.Context) (*RawTable, model.SourceInfo, error) {
	return s.Generate(), s.Describe(), nil
}

// Describe names the seed.
func (s SampleSource) Describe() model.SourceInfo {
	return model.SourceInfo{Kind: model.SourceSample, Location: "seed=" + strconv.FormatUint(s.Seed, 10)}
}

// Generate builds the table directly.
func (s SampleSource) Generate() *RawTable {
	weeks := s.Weeks
	if weeks <= 0 {
		weeks = 52
	}
	start := s.Start
	if start.IsZero() {
		start = DefaultSampleStart
	}
	r := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))

	header := []string{ColEndDate, ColCases, ColWeekNum}
	if s.WithFactors {
		header = append(header, model.RecognisedFactors()...)
	}

	rows := make([][]string, 0, weeks)
	for i := range weeks {
		season := math.Sin(2 * math.Pi * float64(i) / 52)
		factors := map[string]float64{}
		if s.WithFactors {
			factors = sampleFactors(r, season)
		}

		cases := 100 + 30*season + r.NormFloat64()*8
		if s.WithFactors {
			cases += 20*factors[model.FactorOutbreakIndex] + 10*factors[model.FactorHolidayFlag]
		}
		cases = math.Max(0, math.Round(cases))

		row := []string{
			start.AddDate(0, 0, 7*i).Format(DateLayout),
			strconv.FormatFloat(cases, 'f', 0, 64),
			strconv.Itoa(i + 1),
		}
		if s.WithFactors {
			for _, name := range header[3:] {
				row = append(row, strconv.FormatFloat(factors[name], 'f', 2, 64))
			}
		}
		rows = append(rows, row)
	}
	return &RawTable{Header: header, Rows: rows}
}

// sampleFactors draws one week of factor values in plausible ranges.
// Temperature follows the season; the rest are independent.
func sampleFactors(r *rand.Rand, season float64) map[string]float64 {
	bernoulli := func(p float64) float64 {
		if r.Float64() < p {
			return 1
		}
		return 0
	}
	return map[string]float64{
		model.FactorTemperature:       math.Round((15+10*season+r.NormFloat64()*2)*100) / 100,
		model.FactorHumidity:          math.Round((40+r.Float64()*40)*100) / 100,
		model.FactorHolidayFlag:       bernoulli(0.1),
		model.FactorCampaign:          bernoulli(0.15),
		model.FactorOutbreakIndex:     math.Round(r.Float64()*100) / 100,
		model.FactorPopulationDensity: math.Round(1000 + r.Float64()*4000),
		model.FactorSchoolClosed:      bernoulli(0.1),
		model.FactorTourists:          math.Round(r.Float64() * 1000),
	}
}
