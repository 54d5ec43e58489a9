package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Pipeline error taxonomy. Wrap with eris and test with errors.Is.
var (
	// ErrIngestion means the source was unreachable or malformed.
	ErrIngestion = eris.New("ingestion failed")
	// ErrEmptySeries means no valid rows survived cleaning.
	ErrEmptySeries = eris.New("series is empty")
	// ErrReservedName means a selected factor collides with provider vocabulary.
	ErrReservedName = eris.New("factor name is reserved")
	// ErrInvalidRequest means the forecast request is out of range.
	ErrInvalidRequest = eris.New("invalid forecast request")
	// ErrFit means the provider could not train a model.
	ErrFit = eris.New("could not train model")
	// ErrValidationCompute means held-out metrics could not be computed.
	ErrValidationCompute = eris.New("validation metrics unavailable")
	// ErrAccuracyCompute means in-sample metrics could not be computed.
	ErrAccuracyCompute = eris.New("accuracy metrics unavailable")
	// ErrProviderUnavailable means the provider timed out or its circuit is open.
	ErrProviderUnavailable = eris.New("forecast provider unavailable")
	// ErrNotFound means a session or run does not exist.
	ErrNotFound = eris.New("not found")
)

// Classify tags err with a taxonomy sentinel. Both kind and err stay in
// the chain, so errors.Is(out, kind) and errors.As against err's types
// hold. It uses fmt.Errorf because eris wraps a single cause only.
func Classify(kind, err error, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", action, kind, err)
}
