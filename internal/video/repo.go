package video

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, log *logger.Logger) *Repo {
	if log == nil {
		log = logger.NewNop()
	}
	return &Repo{db: db, log: log}
}

func (r *Repo) toChunk(row *chunkRow) ContentChunk {
	keywords := []string{}
	if len(row.Keywords) > 0 {
		if err := json.Unmarshal(row.Keywords, &keywords); err != nil {
			r.log.Warn("malformed keywords column", "chunk_id", row.ID, "error", err)
			keywords = []string{}
		}
	}
	if keywords == nil {
		keywords = []string{}
	}
	return ContentChunk{
		ID:         row.ID,
		VideoID:    row.VideoID,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		Content:    row.Content,
		Topic:      row.Topic,
		Keywords:   keywords,
		Confidence: row.Confidence,
		CreatedAt:  row.CreatedAt,
	}
}

func (r *Repo) toChunks(rows []chunkRow) []ContentChunk {
	out := make([]ContentChunk, 0, len(rows))
	for i := range rows {
		out = append(out, r.toChunk(&rows[i]))
	}
	return out
}

// FindChunk returns the chunk covering t, preferring the latest start if
// chunks overlap. A gap is (nil, nil).
func (r *Repo) FindChunk(ctx context.Context, videoID string, t int) (*ContentChunk, error) {
	done := metrics.TimeOp("db_find_chunk")
	var row chunkRow
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND start_time <= ? AND end_time > ?", videoID, t, t).
		Order("start_time DESC").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		done(true)
		return nil, nil
	}
	if err != nil {
		done(false)
		return nil, err
	}
	done(true)
	c := r.toChunk(&row)
	return &c, nil
}

// FindSurrounding returns chunks whose start lies in [low, high], ascending.
func (r *Repo) FindSurrounding(ctx context.Context, videoID string, low, high int) ([]ContentChunk, error) {
	done := metrics.TimeOp("db_find_surrounding")
	var rows []chunkRow
	if err := r.db.WithContext(ctx).
		Where("video_id = ? AND start_time >= ? AND start_time <= ?", videoID, low, high).
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		done(false)
		return nil, err
	}
	done(true)
	return r.toChunks(rows), nil
}

// ListChunks returns every chunk of a video, ascending by start.
func (r *Repo) ListChunks(ctx context.Context, videoID string) ([]ContentChunk, error) {
	done := metrics.TimeOp("db_list_chunks")
	var rows []chunkRow
	if err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		done(false)
		return nil, err
	}
	done(true)
	return r.toChunks(rows), nil
}

// ReplaceChunks swaps a video's chunk set in one transaction. Chunks without
// an id get a fresh uuid; ids are written back into the slice.
func (r *Repo) ReplaceChunks(ctx context.Context, videoID string, chunks []ContentChunk) error {
	done := metrics.TimeOp("db_replace_chunks")
	rows := make([]chunkRow, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.VideoID = videoID
		if c.Confidence == 0 {
			c.Confidence = DefaultChunkConfidence
		}
		kw := c.Keywords
		if kw == nil {
			kw = []string{}
		}
		b, err := json.Marshal(kw)
		if err != nil {
			done(false)
			return err
		}
		rows = append(rows, chunkRow{
			ID:         c.ID,
			VideoID:    videoID,
			StartTime:  c.StartTime,
			EndTime:    c.EndTime,
			Content:    c.Content,
			Topic:      c.Topic,
			Keywords:   datatypes.JSON(b),
			Confidence: c.Confidence,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Delete(&chunkRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	done(err == nil)
	return err
}

func (r *Repo) ListVideos(ctx context.Context) ([]VideoSummary, error) {
	done := metrics.TimeOp("db_list_videos")
	var out []VideoSummary
	if err := r.db.WithContext(ctx).Model(&chunkRow{}).
		Select("video_id, COUNT(*) AS chunks, MAX(end_time) AS duration").
		Group("video_id").
		Order("video_id ASC").
		Scan(&out).Error; err != nil {
		done(false)
		return nil, err
	}
	done(true)
	return out, nil
}
