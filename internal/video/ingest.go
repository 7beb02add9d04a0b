package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/learning-buddy/internal/logger"
)

const FallbackMarker = "[Fallback transcript]"

// TranscriptSource yields the raw caption segments of a video.
type TranscriptSource interface {
	Fetch(ctx context.Context, videoID string) ([]Segment, error)
}

// HTTPTranscriptSource reads GET {BaseURL}/transcripts/{videoID}.
type HTTPTranscriptSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTranscriptSource(baseURL string) *HTTPTranscriptSource {
	return &HTTPTranscriptSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPTranscriptSource) Fetch(ctx context.Context, videoID string) ([]Segment, error) {
	if s.BaseURL == "" {
		return nil, errors.New("transcript base url is empty")
	}
	endpoint := s.BaseURL + "/transcripts/" + url.PathEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("transcript fetch status=%d body=%s", resp.StatusCode, string(b))
	}
	var segs []Segment
	if err := json.NewDecoder(resp.Body).Decode(&segs); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return segs, nil
}

// FallbackSource serves a fixed transcript when Primary fails or is empty.
type FallbackSource struct {
	Primary TranscriptSource
	Log     *logger.Logger
}

func (s *FallbackSource) Fetch(ctx context.Context, videoID string) ([]Segment, error) {
	if s.Primary != nil {
		segs, err := s.Primary.Fetch(ctx, videoID)
		if err == nil && len(segs) > 0 {
			return segs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s.Log != nil {
			s.Log.Warn("transcript unavailable, using fallback", "video_id", videoID, "error", err)
		}
	}
	return FallbackTranscript(), nil
}

var fallbackLines = []string{
	"Welcome to this introduction to artificial intelligence for teachers.",
	"Today we look at what AI tools can and cannot do in a classroom.",
	"A large language model predicts text based on the context you give it.",
	"It does not look facts up unless you give it sources.",
	"Prompt engineering starts with being specific about the role, the task and the format.",
	"For example, ask the model to act as a science teacher writing a lesson plan for grade five.",
	"Let's try a prompt that asks for three discussion questions and a short rubric.",
	"Always review the output; models can be confidently wrong.",
	"Think about privacy before pasting any student information into a tool.",
	"Watch for bias in generated examples and talk about it with students.",
	"AI can speed up feedback and assessment, but your judgment stays in the loop.",
	"In summary, start small, experiment with prompts and share what works with colleagues.",
}

// FallbackTranscript is a fixed 240s transcript; its first segment carries
// FallbackMarker.
func FallbackTranscript() []Segment {
	segs := make([]Segment, 0, len(fallbackLines))
	for i, line := range fallbackLines {
		if i == 0 {
			line = FallbackMarker + " " + line
		}
		segs = append(segs, Segment{Start: float64(i * 20), Duration: 20, Text: line})
	}
	return segs
}

// IsFallback reports whether segs came from FallbackTranscript.
func IsFallback(segs []Segment) bool {
	return len(segs) > 0 && strings.HasPrefix(segs[0].Text, FallbackMarker)
}

type IngestReport struct {
	VideoID  string `json:"video_id"`
	Segments int    `json:"segments"`
	Chunks   int    `json:"chunks"`
	Fallback bool   `json:"fallback"`
}

// Ingester fetches, chunks and stores a video's transcript.
type Ingester struct {
	source  TranscriptSource
	chunker *Chunker
	store   *Locator
	log     *logger.Logger
}

func NewIngester(source TranscriptSource, chunker *Chunker, store *Locator, log *logger.Logger) *Ingester {
	if log == nil {
		log = logger.NewNop()
	}
	return &Ingester{source: source, chunker: chunker, store: store, log: log}
}

func (in *Ingester) Ingest(ctx context.Context, videoID string) (IngestReport, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return IngestReport{}, errors.New("video id is empty")
	}
	segs, err := in.source.Fetch(ctx, videoID)
	if err != nil {
		return IngestReport{}, fmt.Errorf("fetch transcript: %w", err)
	}
	chunks := in.chunker.Chunk(segs)
	if err := in.store.ReplaceChunks(ctx, videoID, chunks); err != nil {
		return IngestReport{}, fmt.Errorf("store chunks: %w", err)
	}
	rep := IngestReport{
		VideoID:  videoID,
		Segments: len(segs),
		Chunks:   len(chunks),
		Fallback: IsFallback(segs),
	}
	in.log.Info("video ingested", "video_id", videoID, "segments", rep.Segments, "chunks", rep.Chunks, "fallback", rep.Fallback)
	return rep, nil
}
