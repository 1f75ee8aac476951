package visual

import (
	"context"
	"image"
)

// Classifier rates images. Implementations may fail or time out; a failed
// classification must not produce a partial result.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (*Result, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, img image.Image) (*Result, error)

func (f ClassifierFunc) Classify(ctx context.Context, img image.Image) (*Result, error) {
	return f(ctx, img)
}

// NoneClassifier rates every image Safe without looking at it.
type NoneClassifier struct{}

func (NoneClassifier) Classify(ctx context.Context, img image.Image) (*Result, error) {
	return Empty(), nil
}
