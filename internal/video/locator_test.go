package video

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/learning-buddy/internal/db"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, Models()...))
	return gdb
}

type memCache struct {
	data        map[string][]ContentChunk
	gets, sets  int
	invalidated []string
	err         error
}

func newMemCache() *memCache { return &memCache{data: map[string][]ContentChunk{}} }

func (m *memCache) GetChunks(_ context.Context, videoID string) ([]ContentChunk, bool, error) {
	m.gets++
	if m.err != nil {
		return nil, false, m.err
	}
	c, ok := m.data[videoID]
	return c, ok, nil
}

func (m *memCache) SetChunks(_ context.Context, videoID string, chunks []ContentChunk) error {
	m.sets++
	m.data[videoID] = chunks
	return nil
}

func (m *memCache) Invalidate(_ context.Context, videoID string) error {
	m.invalidated = append(m.invalidated, videoID)
	delete(m.data, videoID)
	return nil
}

func seed(t *testing.T, l *Locator) {
	t.Helper()
	require.NoError(t, l.ReplaceChunks(context.Background(), "vid-1", []ContentChunk{
		{StartTime: 0, EndTime: 60, Content: "intro", Topic: "Introduction to AI", Keywords: []string{"artificial intelligence"}},
		{StartTime: 60, EndTime: 120, Content: "prompts", Topic: "Prompt Engineering Basics"},
		{StartTime: 180, EndTime: 240, Content: "ethics", Topic: "AI Ethics and Safety", Keywords: []string{"privacy", "bias"}},
	}))
}

func TestLocator_FindChunk(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		gdb := openTestDB(t)
		var cache ChunkCache
		if withCache {
			cache = newMemCache()
		}
		l := NewLocator(NewRepo(gdb, nil), cache, nil)
		seed(t, l)
		ctx := context.Background()

		got, err := l.FindChunk(ctx, "vid-1", 217)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 180, got.StartTime)
		assert.Equal(t, []string{"privacy", "bias"}, got.Keywords)
		assert.Len(t, got.ID, 36)

		got, err = l.FindChunk(ctx, "vid-1", 60)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "prompts", got.Content)
		assert.Equal(t, []string{}, got.Keywords)

		for _, ts := range []int{150, 240, 250, -1} {
			got, err = l.FindChunk(ctx, "vid-1", ts)
			require.NoError(t, err)
			assert.Nil(t, got, "t=%d cache=%v", ts, withCache)
		}

		got, err = l.FindChunk(ctx, "other", 10)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, gdb.Exec("DELETE FROM video_content_chunks").Error)
	}
}

func TestLocator_CacheFillAndInvalidate(t *testing.T) {
	cache := newMemCache()
	l := NewLocator(NewRepo(openTestDB(t), nil), cache, nil)
	seed(t, l)
	assert.Equal(t, []string{"vid-1"}, cache.invalidated)
	ctx := context.Background()

	_, err := l.FindChunk(ctx, "vid-1", 10)
	require.NoError(t, err)
	_, err = l.FindChunk(ctx, "vid-1", 70)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Len(t, cache.data["vid-1"], 3)

	require.NoError(t, l.ReplaceChunks(ctx, "vid-1", []ContentChunk{{StartTime: 0, EndTime: 30, Content: "new"}}))
	_, cached := cache.data["vid-1"]
	assert.False(t, cached)

	got, err := l.FindChunk(ctx, "vid-1", 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Content)
}

func TestLocator_CacheFailureFallsBackToDB(t *testing.T) {
	cache := newMemCache()
	l := NewLocator(NewRepo(openTestDB(t), nil), cache, nil)
	seed(t, l)
	cache.err = errors.New("connection refused")

	got, err := l.FindChunk(context.Background(), "vid-1", 217)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 180, got.StartTime)
	assert.Zero(t, cache.sets)
}

func TestLocator_FindSurrounding(t *testing.T) {
	l := NewLocator(NewRepo(openTestDB(t), nil), nil, nil)
	seed(t, l)
	ctx := context.Background()

	got, err := l.FindSurrounding(ctx, "vid-1", 60, 180)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 60, got[0].StartTime)
	assert.Equal(t, 180, got[1].StartTime)

	got, err = l.FindSurrounding(ctx, "vid-1", 121, 179)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = l.FindSurrounding(ctx, "vid-1", 100, 50)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRepo_MalformedKeywords(t *testing.T) {
	gdb := openTestDB(t)
	l := NewLocator(NewRepo(gdb, nil), nil, nil)
	seed(t, l)
	require.NoError(t, gdb.Exec("UPDATE video_content_chunks SET keywords = ? WHERE start_time = 180", "not json").Error)

	got, err := l.FindChunk(context.Background(), "vid-1", 200)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{}, got.Keywords)
	assert.Equal(t, "ethics", got.Content)
}

func TestRepo_ReplaceAndListVideos(t *testing.T) {
	l := NewLocator(NewRepo(openTestDB(t), nil), nil, nil)
	seed(t, l)
	ctx := context.Background()
	require.NoError(t, l.ReplaceChunks(ctx, "vid-2", []ContentChunk{{StartTime: 0, EndTime: 75}, {StartTime: 75, EndTime: 130}}))
	require.NoError(t, l.ReplaceChunks(ctx, "vid-2", []ContentChunk{{StartTime: 0, EndTime: 90}}))

	vids, err := l.ListVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []VideoSummary{
		{VideoID: "vid-1", Chunks: 3, Duration: 240},
		{VideoID: "vid-2", Chunks: 1, Duration: 90},
	}, vids)
}
