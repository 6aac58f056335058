// Package classifier defines the contracts between the pipeline and the
// model backends: registries that hand out classifier handles, and the
// handles that turn image bytes into ranked predictions.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// TaskImageClassification is the only task kind the pipeline requests.
const TaskImageClassification = "image-classification"

var (
	// ErrModelNotFound is returned by registries that do not know a model id.
	ErrModelNotFound = errors.New("model not found")
	// ErrUnsupportedTask is returned when a registry cannot serve a task kind.
	ErrUnsupportedTask = errors.New("unsupported task")
	// ErrInvalidPrediction flags classifier output outside the label/score contract.
	ErrInvalidPrediction = errors.New("invalid prediction")
)

// Prediction is a single label with its confidence in [0,1].
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// InvokeOptions tunes a single classification call.
type InvokeOptions struct {
	TopK int
}

// AcquireOptions tunes model acquisition.
type AcquireOptions struct {
	Quantized bool
}

// Classifier is a handle bound to one loaded model.
type Classifier interface {
	Classify(ctx context.Context, image []byte, opts InvokeOptions) ([]Prediction, error)
}

// Registry hands out classifier handles for model identifiers.
type Registry interface {
	Acquire(ctx context.Context, task, modelID string, opts AcquireOptions) (Classifier, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, image []byte, opts InvokeOptions) ([]Prediction, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, image []byte, opts InvokeOptions) ([]Prediction, error) {
	return f(ctx, image, opts)
}

// TopK returns the k highest scoring predictions, best first. k <= 0 keeps all.
func TopK(preds []Prediction, k int) []Prediction {
	sorted := make([]Prediction, len(preds))
	copy(sorted, preds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if k > 0 && len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// Validate checks that p carries a label and a score in [0,1].
func Validate(p Prediction) error {
	if strings.TrimSpace(p.Label) == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidPrediction)
	}
	if math.IsNaN(p.Score) || p.Score < 0 || p.Score > 1 {
		return fmt.Errorf("%w: score %v out of range", ErrInvalidPrediction, p.Score)
	}
	return nil
}
