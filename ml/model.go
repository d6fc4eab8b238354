package ml

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Classifier is a model over encoded features with integer class labels.
type Classifier interface {
	Type() string
	Fit(X *mat.Dense, labels []int, classCount int) error
	PredictProba(features []float64) ([]float64, error)
	Validate() error
}

// ModelProvider serves single-record predictions.
type ModelProvider interface {
	Predict(ctx context.Context, record Record) (string, error)
	Labels() []string
	ModelType() string
}
