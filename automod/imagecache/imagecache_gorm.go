package imagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/canvasmod/canvasmod/automod/visual"

	"gorm.io/gorm"
)

// hash lookups are split to stay below SQL parameter limits
const gormChunkSize = 500

type ImageEntryRecord struct {
	ID        int64     `gorm:"primarykey"`
	Rating    string    `gorm:"size:32;not null"`
	LastMatch time.Time `gorm:"index;not null"`

	Hashes []ImageHashRecord  `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Scores []ImageScoreRecord `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
}

func (ImageEntryRecord) TableName() string { return "image_entries" }

type ImageHashRecord struct {
	EntryID int64  `gorm:"primarykey;autoIncrement:false"`
	Hash    []byte `gorm:"primarykey;index;size:128"`
}

func (ImageHashRecord) TableName() string { return "image_hashes" }

type ImageScoreRecord struct {
	EntryID int64   `gorm:"primarykey;autoIncrement:false"`
	Name    string  `gorm:"primarykey;size:64"`
	Value   float64 `gorm:"not null"`
}

func (ImageScoreRecord) TableName() string { return "image_scores" }

// GormImageCache stores entries in a SQL database.
type GormImageCache struct {
	Config Config
	Now    func() time.Time

	db     *gorm.DB
	logger *slog.Logger
}

var _ ImageCache = (*GormImageCache)(nil)

func NewGormImageCache(db *gorm.DB, config Config, logger *slog.Logger) (*GormImageCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&ImageEntryRecord{}, &ImageHashRecord{}, &ImageScoreRecord{}); err != nil {
		return nil, fmt.Errorf("migrating image cache tables: %w", err)
	}
	return &GormImageCache{
		Config: config,
		Now:    func() time.Time { return time.Now().UTC() },
		db:     db,
		logger: logger.With("system", "imagecache-gorm"),
	}, nil
}

func (s *GormImageCache) Get(ctx context.Context, fp Fingerprint) (*visual.Result, error) {
	if len(fp) == 0 {
		return nil, nil
	}
	db := s.db.WithContext(ctx)

	counts := make(map[int64]int)
	for start := 0; start < len(fp); start += gormChunkSize {
		end := min(start+gormChunkSize, len(fp))
		var rows []struct {
			EntryID int64
			Matches int
		}
		err := db.Model(&ImageHashRecord{}).
			Select("entry_id, count(*) as matches").
			Where("hash IN ?", hashArgs(fp[start:end])).
			Group("entry_id").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("counting matching tiles: %w", err)
		}
		for _, r := range rows {
			counts[r.EntryID] += r.Matches
		}
	}

	overlaps := make(map[int64]float64)
	var ids []int64
	for id, n := range counts {
		if overlap := percent(n, len(fp)); overlap > s.Config.Threshold {
			overlaps[id] = overlap
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var records []ImageEntryRecord
	if err := db.Preload("Scores").Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading matched entries: %w", err)
	}
	entries := make([]*Entry, 0, len(records))
	for _, rec := range records {
		e, err := rec.entry()
		if err != nil {
			// rows written by a newer version, ignore rather than fail the lookup
			s.logger.Warn("skipping unreadable image cache entry", "id", rec.ID, "err", err)
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	best := pickWorst(entries, overlaps)

	err := db.Model(&ImageEntryRecord{}).Where("id IN ?", ids).Update("last_match", s.Now()).Error
	if err != nil {
		return nil, fmt.Errorf("refreshing matched entries: %w", err)
	}
	return best.Result(), nil
}

func (s *GormImageCache) Put(ctx context.Context, fp Fingerprint, result *visual.Result) error {
	if len(fp) == 0 {
		return nil
	}
	rec := ImageEntryRecord{
		Rating:    result.Rating.String(),
		LastMatch: s.Now(),
		Hashes:    make([]ImageHashRecord, len(fp)),
	}
	for i, h := range fp {
		rec.Hashes[i] = ImageHashRecord{Hash: h[:]}
	}
	for name, v := range result.Scores {
		rec.Scores = append(rec.Scores, ImageScoreRecord{Name: string(name), Value: v})
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("storing image cache entry: %w", err)
	}
	return nil
}

// Evict deletes entries unmatched for longer than the retention window, and
// entries beyond the MaxSize most recently matched.
func (s *GormImageCache) Evict(ctx context.Context) (int, error) {
	var removed int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []int64
		cutoff := s.Now().Add(-s.Config.Retention)
		if err := tx.Model(&ImageEntryRecord{}).Where("last_match < ?", cutoff).Pluck("id", &expired).Error; err != nil {
			return err
		}

		var overflow []int64
		if s.Config.MaxSize > 0 {
			var ranked []int64
			err := tx.Model(&ImageEntryRecord{}).
				Order("last_match DESC").Order("id DESC").
				Pluck("id", &ranked).Error
			if err != nil {
				return err
			}
			if len(ranked) > s.Config.MaxSize {
				overflow = ranked[s.Config.MaxSize:]
			}
		}

		ids := dedupeIDs(expired, overflow)
		for start := 0; start < len(ids); start += gormChunkSize {
			chunk := ids[start:min(start+gormChunkSize, len(ids))]
			// children are deleted explicitly, sqlite does not enforce foreign keys by default
			if err := tx.Where("entry_id IN ?", chunk).Delete(&ImageHashRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("entry_id IN ?", chunk).Delete(&ImageScoreRecord{}).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", chunk).Delete(&ImageEntryRecord{})
			if res.Error != nil {
				return res.Error
			}
			removed += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("evicting image cache entries: %w", err)
	}
	return removed, nil
}

func (rec *ImageEntryRecord) entry() (*Entry, error) {
	rating, err := visual.ParseRating(rec.Rating)
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, errors.New("entry without id")
	}
	scores := make(map[visual.Category]float64, len(rec.Scores))
	for _, sc := range rec.Scores {
		scores[visual.Category(sc.Name)] = sc.Value
	}
	return &Entry{
		ID:        rec.ID,
		Rating:    rating,
		Scores:    scores,
		LastMatch: rec.LastMatch,
	}, nil
}

func hashArgs(fp Fingerprint) []any {
	out := make([]any, len(fp))
	for i := range fp {
		out[i] = fp[i][:]
	}
	return out
}

func dedupeIDs(lists ...[]int64) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, l := range lists {
		for _, id := range l {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
