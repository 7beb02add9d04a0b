package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/learning-buddy/internal/ai"
	"github.com/suPer8Hu/learning-buddy/internal/auth"
	"github.com/suPer8Hu/learning-buddy/internal/chat"
	"github.com/suPer8Hu/learning-buddy/internal/config"
	"github.com/suPer8Hu/learning-buddy/internal/db"
	"github.com/suPer8Hu/learning-buddy/internal/httpapi/handlers"
	"github.com/suPer8Hu/learning-buddy/internal/memory"
	"github.com/suPer8Hu/learning-buddy/internal/video"
)

const testSecret = "test-secret"

type echoProvider struct{}

func (echoProvider) Chat(_ context.Context, msgs []ai.Message) (string, error) {
	return "echo: " + msgs[len(msgs)-1].Content, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t     *testing.T
	r     *gin.Engine
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), nil)
	require.NoError(t, err)
	models := append(chat.Models(), memory.Models()...)
	models = append(models, video.Models()...)
	require.NoError(t, db.Migrate(gdb, models...))

	reg := ai.NewRegistry()
	reg.Register("ollama", func(context.Context, string) (ai.Provider, error) { return echoProvider{}, nil })

	memSvc := memory.NewService(memory.NewRepo(gdb, nil), memory.Limits{}, nil)
	loc := video.NewLocator(video.NewRepo(gdb, nil), nil, nil)
	h := &handlers.Handler{
		ChatSvc: chat.NewService(chat.NewRepo(gdb), reg, 20, chat.Deps{
			Memory:  memSvc,
			Videos:  loc,
			Updater: memory.NewUpdater(memSvc, memory.NewKeywordExtractor(nil), nil),
		}),
		Memory:   memSvc,
		Videos:   loc,
		Ingester: video.NewIngester(&video.FallbackSource{}, video.NewChunker(config.Chunking{}, video.DefaultDictionary), loc, nil),
	}

	tok, err := auth.SignJWT(7, testSecret, time.Hour)
	require.NoError(t, err)
	return &testServer{t: t, r: NewRouter(config.Config{JWTSecret: testSecret}, h, nil), token: tok}
}

func (s *testServer) do(method, path string, body any, authed bool) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestRouter_PublicAndAuth(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodGet, "/ping", nil, false)
	assert.Equal(t, http.StatusOK, code)

	code, env := s.do(http.MethodPost, "/chat/sessions", nil, false)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40101, env.Code)

	code, env = s.do(http.MethodGet, "/nope", nil, false)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40400, env.Code)
}

func TestRouter_ChatUpdatesMemory(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/chat/sessions", map[string]any{}, true)
	require.Equal(t, http.StatusOK, code)
	sid := decode[struct {
		SessionID string `json:"session_id"`
	}](t, env.Data).SessionID
	require.Len(t, sid, 26)

	code, env = s.do(http.MethodPost, "/chat/messages", map[string]any{"session_id": sid, "message": "How do I grade with a rubric?"}, true)
	require.Equal(t, http.StatusOK, code)
	sent := decode[struct {
		Reply    string `json:"reply"`
		Degraded bool   `json:"degraded"`
	}](t, env.Data)
	assert.Equal(t, "echo: How do I grade with a rubric?", sent.Reply)
	assert.False(t, sent.Degraded)

	code, env = s.do(http.MethodGet, "/memory/context?topic=assess", nil, true)
	require.Equal(t, http.StatusOK, code)
	ctxText := decode[struct {
		Context string `json:"context"`
	}](t, env.Data).Context
	assert.Contains(t, ctxText, "- assessment (concept): Discussed: How do I grade with a rubric?")
	assert.Contains(t, ctxText, "- user discussed assessment")

	code, _ = s.do(http.MethodPost, "/chat/messages", map[string]any{"session_id": "missing", "message": "x"}, true)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_MemoryEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodPost, "/memory/entities/observations", map[string]any{"name": "rubrics", "observations": []string{"likes 4-point scales"}}, true)
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(http.MethodPost, "/memory/entities", map[string]any{"name": " "}, true)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 10004, env.Code)

	code, _ = s.do(http.MethodPost, "/memory/relations", map[string]any{"from": "user", "to": "rubrics", "relation_type": "interested_in", "strength": 1.7}, true)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodGet, "/memory/relations?name=rubrics", nil, true)
	require.Equal(t, http.StatusOK, code)
	rels := decode[struct {
		Relations []memory.Relation `json:"relations"`
	}](t, env.Data).Relations
	require.Len(t, rels, 1)
	assert.InDelta(t, 1.0, rels[0].Strength, 1e-9)

	code, env = s.do(http.MethodGet, "/memory/entities?q=RUB", nil, true)
	require.Equal(t, http.StatusOK, code)
	ents := decode[struct {
		Entities []memory.Entity `json:"entities"`
	}](t, env.Data).Entities
	require.Len(t, ents, 1)
	assert.Equal(t, []string{"likes 4-point scales"}, ents[0].Observations)
}

func TestRouter_VideoIngestAndLookup(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/admin/videos/intro-ai/ingest", nil, true)
	require.Equal(t, http.StatusOK, code)
	rep := decode[struct {
		Report video.IngestReport `json:"report"`
	}](t, env.Data).Report
	assert.True(t, rep.Fallback)
	assert.Equal(t, 3, rep.Chunks)

	code, env = s.do(http.MethodGet, "/videos/intro-ai/chunk?t=217", nil, true)
	require.Equal(t, http.StatusOK, code)
	chunk := decode[struct {
		Chunk *video.ContentChunk `json:"chunk"`
	}](t, env.Data).Chunk
	require.NotNil(t, chunk)
	assert.Equal(t, 160, chunk.StartTime)
	assert.Equal(t, 240, chunk.EndTime)

	code, env = s.do(http.MethodGet, "/videos/intro-ai/chunk?t=250", nil, true)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, decode[struct {
		Chunk *video.ContentChunk `json:"chunk"`
	}](t, env.Data).Chunk)

	code, _ = s.do(http.MethodGet, "/videos/intro-ai/chunk?t=abc", nil, true)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodGet, "/videos/intro-ai/chunks?from=0&to=100", nil, true)
	require.Equal(t, http.StatusOK, code)
	chunks := decode[struct {
		Chunks []video.ContentChunk `json:"chunks"`
	}](t, env.Data).Chunks
	require.Len(t, chunks, 2)

	code, env = s.do(http.MethodGet, "/videos/intro-ai/chunks?from=100&to=50", nil, true)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 10006, env.Code)

	code, env = s.do(http.MethodGet, "/videos", nil, true)
	require.Equal(t, http.StatusOK, code)
	vids := decode[struct {
		Videos []video.VideoSummary `json:"videos"`
	}](t, env.Data).Videos
	assert.Equal(t, []video.VideoSummary{{VideoID: "intro-ai", Chunks: 3, Duration: 240}}, vids)
}
