package imagecache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/canvasmod/canvasmod/automod/visual"

	"github.com/go-redis/cache/v9"
	"github.com/minio/sha256-simd"
	"github.com/redis/go-redis/v9"
)

var redisImagePrefix string = "imgcache/"

// RedisImageCache keeps one redis set of entry IDs per tile hash, a sorted set
// ranking entries by last match, and the entries themselves as cached
// documents.
type RedisImageCache struct {
	Config Config
	Now    func() time.Time

	Client *redis.Client
	Data   *cache.Cache
}

var _ ImageCache = (*RedisImageCache)(nil)

// redisEntry is the stored document of an entry.
type redisEntry struct {
	ID     int64
	Rating string
	Scores map[string]float64
	Hashes [][]byte
}

func NewRedisImageCache(redisURL string, config Config) (*RedisImageCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return NewRedisImageCacheFromClient(rdb, config), nil
}

func NewRedisImageCacheFromClient(rdb *redis.Client, config Config) *RedisImageCache {
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(1_000, time.Minute),
	})
	return &RedisImageCache{
		Config: config,
		Now:    time.Now,
		Client: rdb,
		Data:   data,
	}
}

func redisTileKey(h TileHash) string {
	sum := sha256.Sum256(h[:])
	return redisImagePrefix + "tile/" + hex.EncodeToString(sum[:16])
}

func redisEntryKey(id int64) string {
	return redisImagePrefix + "entry/" + strconv.FormatInt(id, 10)
}

func redisRecencyKey() string {
	return redisImagePrefix + "lastmatch"
}

func (s *RedisImageCache) Get(ctx context.Context, fp Fingerprint) (*visual.Result, error) {
	if len(fp) == 0 {
		return nil, nil
	}

	multi := s.Client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(fp))
	for i, h := range fp {
		cmds[i] = multi.SMembers(ctx, redisTileKey(h))
	}
	if _, err := multi.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading tile postings: %w", err)
	}

	counts := make(map[int64]int)
	for _, cmd := range cmds {
		members, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		for _, m := range members {
			id, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
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
		e, err := s.loadEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			// evicted entry still listed in the tile sets
			if err := s.unindex(ctx, id, fp); err != nil {
				return nil, err
			}
			continue
		}
		overlaps[id] = overlap
		matched = append(matched, e)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	best := pickWorst(matched, overlaps)
	now := float64(s.Now().Unix())
	multi = s.Client.Pipeline()
	for _, e := range matched {
		multi.ZAdd(ctx, redisRecencyKey(), redis.Z{Score: now, Member: e.ID})
	}
	if _, err := multi.Exec(ctx); err != nil {
		return nil, fmt.Errorf("refreshing matched entries: %w", err)
	}
	for _, e := range matched {
		if err := s.storeEntry(ctx, e); err != nil {
			return nil, err
		}
	}
	return best.Result(), nil
}

func (s *RedisImageCache) Put(ctx context.Context, fp Fingerprint, result *visual.Result) error {
	if len(fp) == 0 {
		return nil
	}
	id, err := s.Client.Incr(ctx, redisImagePrefix+"seq").Result()
	if err != nil {
		return fmt.Errorf("allocating entry id: %w", err)
	}
	e := &Entry{
		ID:        id,
		Rating:    result.Rating,
		Scores:    result.Clone().Scores,
		Hashes:    fp,
		LastMatch: s.Now(),
	}
	if err := s.storeEntry(ctx, e); err != nil {
		return err
	}

	multi := s.Client.TxPipeline()
	for _, h := range fp {
		multi.SAdd(ctx, redisTileKey(h), id)
	}
	multi.ZAdd(ctx, redisRecencyKey(), redis.Z{Score: float64(e.LastMatch.Unix()), Member: id})
	_, err = multi.Exec(ctx)
	return err
}

func (s *RedisImageCache) Evict(ctx context.Context) (int, error) {
	cutoff := s.Now().Add(-s.Config.Retention).Unix()
	expired, err := s.Client.ZRangeByScore(ctx, redisRecencyKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("listing expired entries: %w", err)
	}

	var overflow []string
	if s.Config.MaxSize > 0 {
		overflow, err = s.Client.ZRevRange(ctx, redisRecencyKey(), int64(s.Config.MaxSize), -1).Result()
		if err != nil {
			return 0, fmt.Errorf("listing overflowing entries: %w", err)
		}
	}

	removed := 0
	seen := make(map[string]struct{})
	for _, m := range append(expired, overflow...) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		e, err := s.loadEntry(ctx, id)
		if err != nil {
			return removed, err
		}
		if e != nil {
			if err := s.unindex(ctx, id, e.Hashes); err != nil {
				return removed, err
			}
		}
		if err := s.Data.Delete(ctx, redisEntryKey(id)); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			return removed, err
		}
		if err := s.Client.ZRem(ctx, redisRecencyKey(), m).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *RedisImageCache) loadEntry(ctx context.Context, id int64) (*Entry, error) {
	var doc redisEntry
	err := s.Data.Get(ctx, redisEntryKey(id), &doc)
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading entry %d: %w", id, err)
	}
	rating, err := visual.ParseRating(doc.Rating)
	if err != nil {
		return nil, nil
	}
	e := &Entry{
		ID:     doc.ID,
		Rating: rating,
		Scores: make(map[visual.Category]float64, len(doc.Scores)),
		Hashes: make(Fingerprint, 0, len(doc.Hashes)),
	}
	for k, v := range doc.Scores {
		e.Scores[visual.Category(k)] = v
	}
	for _, b := range doc.Hashes {
		var h TileHash
		copy(h[:], b)
		e.Hashes = append(e.Hashes, h)
	}
	return e, nil
}

// storeEntry writes the entry document. Its TTL is the retention window, so
// a refresh also extends it.
func (s *RedisImageCache) storeEntry(ctx context.Context, e *Entry) error {
	doc := redisEntry{
		ID:     e.ID,
		Rating: e.Rating.String(),
		Scores: make(map[string]float64, len(e.Scores)),
		Hashes: make([][]byte, len(e.Hashes)),
	}
	for k, v := range e.Scores {
		doc.Scores[string(k)] = v
	}
	for i := range e.Hashes {
		doc.Hashes[i] = e.Hashes[i][:]
	}
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisEntryKey(e.ID),
		Value: &doc,
		TTL:   s.Config.Retention,
	})
}

func (s *RedisImageCache) unindex(ctx context.Context, id int64, fp Fingerprint) error {
	multi := s.Client.Pipeline()
	for _, h := range fp {
		multi.SRem(ctx, redisTileKey(h), id)
	}
	_, err := multi.Exec(ctx)
	return err
}
