package visual

import (
	"context"
	"errors"
	"image"
	"log/slog"
)

// FallbackClassifier asks Secondary only when Primary fails.
type FallbackClassifier struct {
	Primary   Classifier
	Secondary Classifier
	Logger    *slog.Logger
}

func NewFallbackClassifier(primary, secondary Classifier, logger *slog.Logger) *FallbackClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackClassifier{Primary: primary, Secondary: secondary, Logger: logger}
}

func (f *FallbackClassifier) Classify(ctx context.Context, img image.Image) (*Result, error) {
	res, err := f.Primary.Classify(ctx, img)
	if err == nil {
		return res, nil
	}
	f.Logger.Debug("primary classifier failed, switching to secondary", "err", err)
	classifierFallbacks.Inc()
	res, err2 := f.Secondary.Classify(ctx, img)
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	return res, nil
}
