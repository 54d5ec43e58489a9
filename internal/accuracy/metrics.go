// Package accuracy computes error metrics and back-tests a fitted curve
// against the observed history.
package accuracy

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// ErrZeroActual is returned by MAPE when an actual value is zero.
var ErrZeroActual = eris.New("accuracy: actual value is zero")

// ErrLengthMismatch is returned when the actual and predicted slices differ.
var ErrLengthMismatch = eris.New("accuracy: length mismatch")

func check(actual, predicted []float64) error {
	if len(actual) != len(predicted) {
		return eris.Wrapf(ErrLengthMismatch, "accuracy: %d actual vs %d predicted", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return eris.Wrap(ErrLengthMismatch, "accuracy: no values")
	}
	return nil
}

// MAE is the mean absolute error.
func MAE(actual, predicted []float64) (float64, error) {
	if err := check(actual, predicted); err != nil {
		return 0, err
	}
	abs := make([]float64, len(actual))
	for i := range actual {
		abs[i] = math.Abs(actual[i] - predicted[i])
	}
	return stat.Mean(abs, nil), nil
}

// RMSE is the root mean squared error.
func RMSE(actual, predicted []float64) (float64, error) {
	if err := check(actual, predicted); err != nil {
		return 0, err
	}
	sq := make([]float64, len(actual))
	for i := range actual {
		d := actual[i] - predicted[i]
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil)), nil
}

// MAPE is mean(|actual-predicted|/|actual|)*100. Any zero actual makes it
// undefined.
func MAPE(actual, predicted []float64) (float64, error) {
	if err := check(actual, predicted); err != nil {
		return 0, err
	}
	rel := make([]float64, len(actual))
	for i := range actual {
		if actual[i] == 0 {
			return 0, eris.Wrapf(ErrZeroActual, "accuracy: actual[%d] is zero", i)
		}
		rel[i] = math.Abs((actual[i] - predicted[i]) / actual[i])
	}
	return stat.Mean(rel, nil) * 100, nil
}

// RSquared is the coefficient of determination. A constant actual series
// scores 1 when predicted exactly and 0 otherwise.
func RSquared(actual, predicted []float64) (float64, error) {
	if err := check(actual, predicted); err != nil {
		return 0, err
	}
	mean := stat.Mean(actual, nil)
	var ssTot, ssRes float64
	for i := range actual {
		ssTot += (actual[i] - mean) * (actual[i] - mean)
		ssRes += (actual[i] - predicted[i]) * (actual[i] - predicted[i])
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return stat.RSquaredFrom(predicted, actual, nil), nil
}
