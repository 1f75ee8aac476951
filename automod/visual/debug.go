package visual

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"
)

// DebugClassifier writes every image it is given to Dir as a JPEG and rates
// it Safe. Used to inspect what the renderer produces.
type DebugClassifier struct {
	Dir string
	Now func() time.Time
}

func NewDebugClassifier(dir string) *DebugClassifier {
	return &DebugClassifier{Dir: dir, Now: time.Now}
}

func (d *DebugClassifier) Classify(ctx context.Context, img image.Image) (*Result, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating debug image dir: %w", err)
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	name := filepath.Join(d.Dir, fmt.Sprintf("%d.jpg", now().UnixMilli()))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing debug image: %w", err)
	}
	return Empty(), nil
}
