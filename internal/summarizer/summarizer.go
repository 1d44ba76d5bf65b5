package summarizer

import (
	"context"
	"errors"

	"fuelshift/backend/internal/domain"
)

// ErrUnavailable marks every failure to obtain a narrative. Callers treat it
// as "no summary" and never as a failed shift.
var ErrUnavailable = errors.New("summary unavailable")

type Summarizer interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (string, error)
}

// Noop is used when no API key is configured.
type Noop struct{}

func (Noop) Summarize(_ context.Context, _ domain.SummaryRequest) (string, error) {
	return "", ErrUnavailable
}
