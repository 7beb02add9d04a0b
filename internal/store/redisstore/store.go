package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/learning-buddy/internal/video"
)

type Store struct {
	cli *redis.Client
	ttl time.Duration
}

// New connects and pings. ttl applies to cached chunk lists.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Store, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(pctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewWithClient(cli, ttl), nil
}

func NewWithClient(cli *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Store{cli: cli, ttl: ttl}
}

func (s *Store) Close() error { return s.cli.Close() }

func chunksKey(videoID string) string { return "video:chunks:" + videoID }

func (s *Store) GetChunks(ctx context.Context, videoID string) ([]video.ContentChunk, bool, error) {
	b, err := s.cli.Get(ctx, chunksKey(videoID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	chunks, err := decodeChunks(b)
	if err != nil {
		// unreadable entries count as a miss and get overwritten
		return nil, false, nil
	}
	return chunks, true, nil
}

func (s *Store) SetChunks(ctx context.Context, videoID string, chunks []video.ContentChunk) error {
	b, err := encodeChunks(chunks)
	if err != nil {
		return err
	}
	return s.cli.Set(ctx, chunksKey(videoID), b, s.ttl).Err()
}

func (s *Store) Invalidate(ctx context.Context, videoID string) error {
	return s.cli.Del(ctx, chunksKey(videoID)).Err()
}

func encodeChunks(chunks []video.ContentChunk) ([]byte, error) {
	if chunks == nil {
		chunks = []video.ContentChunk{}
	}
	return json.Marshal(chunks)
}

func decodeChunks(b []byte) ([]video.ContentChunk, error) {
	var chunks []video.ContentChunk
	if err := json.Unmarshal(b, &chunks); err != nil {
		return nil, err
	}
	for i := range chunks {
		if chunks[i].Keywords == nil {
			chunks[i].Keywords = []string{}
		}
	}
	return chunks, nil
}

var _ video.ChunkCache = (*Store)(nil)
