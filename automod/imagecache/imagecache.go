package imagecache

import (
	"context"
	"time"

	"github.com/canvasmod/canvasmod/automod/visual"
)

// ImageCache stores classification results keyed by fingerprint.
type ImageCache interface {
	// Get returns the worst result among the stored entries matching the
	// fingerprint, or nil on a miss. Every matching entry counts as used.
	Get(ctx context.Context, fp Fingerprint) (*visual.Result, error)
	Put(ctx context.Context, fp Fingerprint, result *visual.Result) error
	// Evict drops expired and overflowing entries, returning how many were
	// removed.
	Evict(ctx context.Context) (int, error)
}

type Config struct {
	// Threshold is the overlap percentage a stored entry must exceed to match.
	Threshold float64
	// Entries unmatched for longer than Retention are evicted.
	Retention time.Duration
	// Only the MaxSize most recently matched entries are kept.
	MaxSize int
}

func DefaultConfig() Config {
	return Config{
		Threshold: 70,
		Retention: 7 * 24 * time.Hour,
		MaxSize:   10_000,
	}
}

// Entry is a stored classification.
type Entry struct {
	ID        int64
	Rating    visual.Rating
	Scores    map[visual.Category]float64
	Hashes    Fingerprint
	LastMatch time.Time
}

func (e *Entry) Result() *visual.Result {
	scores := make(map[visual.Category]float64, len(e.Scores))
	for k, v := range e.Scores {
		scores[k] = v
	}
	return &visual.Result{Rating: e.Rating, Scores: scores}
}

// pickWorst returns the entry with the worst rating. Among equal ratings, the
// entry with the higher overlap wins, then the older one.
func pickWorst(entries []*Entry, overlaps map[int64]float64) *Entry {
	var best *Entry
	for _, e := range entries {
		switch {
		case best == nil:
			best = e
		case e.Rating != best.Rating:
			if e.Rating > best.Rating {
				best = e
			}
		case overlaps[e.ID] != overlaps[best.ID]:
			if overlaps[e.ID] > overlaps[best.ID] {
				best = e
			}
		case e.ID < best.ID:
			best = e
		}
	}
	return best
}
