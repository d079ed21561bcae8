// Package classifier talks to the external language-model capability:
// given an ordered batch of (role, text) pairs it returns one structured
// label per text. Errors carry a coarse kind so the classification engine
// can ledger them.
package classifier

import (
	"context"
	"errors"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// Item is one message handed to the model, in conversation order.
type Item struct {
	Role string
	Text string
}

// Result is the model's structured label for one item.
type Result struct {
	Language   string  `json:"language"`
	Category   string  `json:"category"`
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// BatchClassifier is the capability consumed by the classification engine.
type BatchClassifier interface {
	// ClassifyBatch returns exactly one result per item, same order.
	ClassifyBatch(ctx context.Context, items []Item) ([]Result, error)
}

// Error wraps a classification failure with its coarse kind.
type Error struct {
	Kind models.FailureKind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain, defaulting to
// unknown.
func KindOf(err error) models.FailureKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return models.FailureUnknown
}
