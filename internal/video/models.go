package video

import (
	"time"

	"gorm.io/datatypes"
)

// ContentChunk is a [StartTime, EndTime) span of a video's transcript.
type ContentChunk struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"video_id"`
	StartTime  int       `json:"start_time"`
	EndTime    int       `json:"end_time"`
	Content    string    `json:"content"`
	Topic      string    `json:"topic"`
	Keywords   []string  `json:"keywords"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Covers reports whether t falls inside the half-open interval.
func (c ContentChunk) Covers(t int) bool {
	return c.StartTime <= t && t < c.EndTime
}

// VideoSummary describes one loaded video.
type VideoSummary struct {
	VideoID  string `json:"video_id"`
	Chunks   int    `json:"chunks"`
	Duration int    `json:"duration"`
}

const DefaultChunkConfidence = 0.8

type chunkRow struct {
	ID         string         `gorm:"type:varchar(36);primaryKey"`
	VideoID    string         `gorm:"type:varchar(64);not null;index:idx_video_chunk_start,priority:1"`
	StartTime  int            `gorm:"not null;index:idx_video_chunk_start,priority:2"`
	EndTime    int            `gorm:"not null"`
	Content    string         `gorm:"type:text;not null"`
	Topic      string         `gorm:"type:varchar(128);not null"`
	Keywords   datatypes.JSON `gorm:"not null"`
	Confidence float64        `gorm:"not null;default:0.8"`
	CreatedAt  time.Time
}

func (chunkRow) TableName() string { return "video_content_chunks" }

// Models lists the tables owned by this package, for migration.
func Models() []any {
	return []any{&chunkRow{}}
}
