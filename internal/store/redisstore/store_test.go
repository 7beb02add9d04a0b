package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/learning-buddy/internal/video"
)

func TestChunkCodec(t *testing.T) {
	in := []video.ContentChunk{
		{ID: "a", VideoID: "v", StartTime: 0, EndTime: 75, Content: "intro", Topic: "Introduction to AI", Keywords: []string{"prompt"}, Confidence: 0.8},
		{ID: "b", VideoID: "v", StartTime: 75, EndTime: 140},
	}
	b, err := encodeChunks(in)
	require.NoError(t, err)

	out, err := decodeChunks(b)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Keywords, out[0].Keywords)
	assert.Equal(t, []string{}, out[1].Keywords)
	assert.Equal(t, 140, out[1].EndTime)

	empty, err := encodeChunks(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))

	_, err = decodeChunks([]byte("{"))
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	s, err := New(ctx, addr, "", 0, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	vid := "test-" + time.Now().Format("150405.000000")
	_, hit, err := s.GetChunks(ctx, vid)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, s.SetChunks(ctx, vid, []video.ContentChunk{{ID: "x", StartTime: 0, EndTime: 10}}))
	got, hit, err := s.GetChunks(ctx, vid)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, got, 1)

	require.NoError(t, s.Invalidate(ctx, vid))
	_, hit, err = s.GetChunks(ctx, vid)
	require.NoError(t, err)
	assert.False(t, hit)
}
