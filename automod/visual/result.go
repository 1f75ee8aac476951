package visual

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var ErrUnknownRating = errors.New("unknown rating")

// Rating is the overall verdict for an image. Ratings are ordered, Unsafe being
// the worst.
type Rating int

const (
	Safe Rating = iota
	Warning
	Unsafe
)

func (r Rating) String() string {
	switch r {
	case Safe:
		return "safe"
	case Warning:
		return "warning"
	case Unsafe:
		return "unsafe"
	}
	return fmt.Sprintf("rating(%d)", int(r))
}

func ParseRating(s string) (Rating, error) {
	switch strings.ToLower(s) {
	case "safe":
		return Safe, nil
	case "warning":
		return Warning, nil
	case "unsafe":
		return Unsafe, nil
	}
	return Safe, fmt.Errorf("%w: %q", ErrUnknownRating, s)
}

func (r Rating) MarshalText() ([]byte, error) {
	if r < Safe || r > Unsafe {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRating, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Rating) UnmarshalText(b []byte) error {
	v, err := ParseRating(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Category names a kind of content a classifier scores. The set is open:
// classifiers may report categories this package does not know about.
type Category string

const (
	Nudity Category = "nudity"
	Gore   Category = "gore"
)

// Result is the verdict of a classifier.
type Result struct {
	Rating Rating               `json:"rating"`
	Scores map[Category]float64 `json:"scores,omitempty"`
}

// Empty is the result of classifiers that do not look at the image.
func Empty() *Result {
	return &Result{Rating: Safe, Scores: map[Category]float64{}}
}

func (r *Result) Clone() *Result {
	return &Result{Rating: r.Rating, Scores: maps.Clone(r.Scores)}
}

// Categories returns the scored categories in name order.
func (r *Result) Categories() []Category {
	return slices.Sorted(maps.Keys(r.Scores))
}

func (r *Result) String() string {
	return fmt.Sprintf("%s %v", r.Rating, r.Scores)
}

// Worst returns the result with the worst rating. Ties keep the first one.
func Worst(results ...*Result) *Result {
	var worst *Result
	for _, r := range results {
		if r == nil {
			continue
		}
		if worst == nil || r.Rating > worst.Rating {
			worst = r
		}
	}
	return worst
}
