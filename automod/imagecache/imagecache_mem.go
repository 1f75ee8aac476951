package imagecache

import (
	"context"
	"sync"
	"time"

	"github.com/canvasmod/canvasmod/automod/visual"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemImageCache keeps entries in an expiring LRU, with an inverted index from
// tile hash to entry IDs. Index postings of evicted entries are dropped
// lazily, on lookup or Evict.
type MemImageCache struct {
	Config Config
	Now    func() time.Time

	Data *expirable.LRU[int64, *Entry]

	lk     sync.Mutex
	index  map[TileHash]map[int64]struct{}
	nextID int64
}

var _ ImageCache = (*MemImageCache)(nil)

func NewMemImageCache(config Config) *MemImageCache {
	return &MemImageCache{
		Config: config,
		Now:    time.Now,
		Data:   expirable.NewLRU[int64, *Entry](config.MaxSize, nil, config.Retention),
		index:  make(map[TileHash]map[int64]struct{}),
	}
}

func (s *MemImageCache) Get(ctx context.Context, fp Fingerprint) (*visual.Result, error) {
	if len(fp) == 0 {
		return nil, nil
	}
	s.lk.Lock()
	defer s.lk.Unlock()

	counts := make(map[int64]int)
	for _, h := range fp {
		for id := range s.index[h] {
			counts[id]++
		}
	}

	overlaps := make(map[int64]float64)
	var matched []*Entry
	for id, n := range counts {
		overlap := percent(n, len(fp))
		if overlap <= s.Config.Threshold {
			continue
		}
		e, ok := s.Data.Peek(id)
		if !ok {
			s.unindex(id, fp)
			continue
		}
		overlaps[id] = overlap
		matched = append(matched, e)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	best := pickWorst(matched, overlaps)
	now := s.Now()
	for _, e := range matched {
		refreshed := *e
		refreshed.LastMatch = now
		// re-adding resets both recency and expiry
		s.Data.Add(e.ID, &refreshed)
	}
	return best.Result(), nil
}

func (s *MemImageCache) Put(ctx context.Context, fp Fingerprint, result *visual.Result) error {
	if len(fp) == 0 {
		return nil
	}
	s.lk.Lock()
	defer s.lk.Unlock()

	s.nextID++
	e := &Entry{
		ID:        s.nextID,
		Rating:    result.Rating,
		Scores:    result.Clone().Scores,
		Hashes:    fp,
		LastMatch: s.Now(),
	}
	s.Data.Add(e.ID, e)
	for _, h := range fp {
		ids, ok := s.index[h]
		if !ok {
			ids = make(map[int64]struct{})
			s.index[h] = ids
		}
		ids[e.ID] = struct{}{}
	}
	return nil
}

// Evict drops index postings of entries the LRU has already expired or pushed
// out. Returns the number of entries forgotten.
func (s *MemImageCache) Evict(ctx context.Context) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	gone := make(map[int64]struct{})
	for h, ids := range s.index {
		for id := range ids {
			if _, ok := gone[id]; ok {
				delete(ids, id)
				continue
			}
			if _, ok := s.Data.Peek(id); !ok {
				gone[id] = struct{}{}
				delete(ids, id)
			}
		}
		if len(ids) == 0 {
			delete(s.index, h)
		}
	}
	return len(gone), nil
}

// Len returns the number of live entries.
func (s *MemImageCache) Len() int {
	return s.Data.Len()
}

func (s *MemImageCache) unindex(id int64, fp Fingerprint) {
	for _, h := range fp {
		ids, ok := s.index[h]
		if !ok {
			continue
		}
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.index, h)
		}
	}
}
