package video

import (
	"math"
	"strings"

	"github.com/suPer8Hu/learning-buddy/internal/config"
)

const (
	lastSegmentSeconds = 8.0
	maxChunkKeywords   = 8
)

// Segment is one raw caption line. Duration may be zero when the source
// only carries start times.
type Segment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

type Chunker struct {
	policy config.Chunking
	dict   Dictionary
}

// NewChunker fills zero thresholds with the defaults (75/45/90s, 20 segments).
func NewChunker(policy config.Chunking, dict Dictionary) *Chunker {
	if policy.TargetSeconds <= 0 {
		policy.TargetSeconds = 75
	}
	if policy.MinSeconds <= 0 {
		policy.MinSeconds = 45
	}
	if policy.MaxSeconds <= 0 {
		policy.MaxSeconds = 90
	}
	if policy.MaxSegments <= 0 {
		policy.MaxSegments = 20
	}
	if policy.MinSeconds > policy.TargetSeconds {
		policy.MinSeconds = policy.TargetSeconds
	}
	if policy.MaxSeconds < policy.TargetSeconds {
		policy.MaxSeconds = policy.TargetSeconds
	}
	if len(dict.Topics) == 0 && len(dict.Keywords) == 0 {
		dict = DefaultDictionary
	}
	return &Chunker{policy: policy, dict: dict}
}

type window struct {
	start, end float64
	segments   int
	texts      []string
}

func (w *window) span() float64 { return w.end - w.start }

// Chunk groups segments into chunks whose [start, end) bounds, in whole
// seconds, tile the input range. Chunks carry no ids or video id.
func (c *Chunker) Chunk(segments []Segment) []ContentChunk {
	if len(segments) == 0 {
		return nil
	}
	ends := segmentEnds(segments)
	target := float64(c.policy.TargetSeconds)
	minSpan := float64(c.policy.MinSeconds)
	maxSpan := float64(c.policy.MaxSeconds)

	var windows []window
	var cur *window
	for i, seg := range segments {
		if cur != nil && ends[i]-cur.start > maxSpan && cur.span() >= minSpan {
			windows = append(windows, *cur)
			cur = nil
		}
		if cur == nil {
			cur = &window{start: seg.Start}
		}
		cur.end = math.Max(cur.end, ends[i])
		cur.segments++
		if t := strings.TrimSpace(seg.Text); t != "" {
			cur.texts = append(cur.texts, t)
		}
		span := cur.span()
		if span >= target || (cur.segments >= c.policy.MaxSegments && span >= minSpan) {
			windows = append(windows, *cur)
			cur = nil
		}
	}
	if cur != nil {
		windows = append(windows, *cur)
	}

	out := make([]ContentChunk, 0, len(windows))
	for i, w := range windows {
		start := int(math.Round(w.start))
		var end int
		if i+1 < len(windows) {
			end = int(math.Round(windows[i+1].start))
		} else {
			end = int(math.Round(w.end))
		}
		if end <= start {
			end = start + 1
		}
		content := strings.Join(w.texts, " ")
		out = append(out, ContentChunk{
			StartTime:  start,
			EndTime:    end,
			Content:    content,
			Topic:      c.dict.Topic(content),
			Keywords:   c.dict.KeywordsIn(content, maxChunkKeywords),
			Confidence: DefaultChunkConfidence,
		})
	}
	return out
}

// segmentEnds gives the bound each segment contributes to a window: the next
// segment's start, since that is where the emitted chunk will end. Caption
// display durations often overlap the next line, so they only bound the last
// segment.
func segmentEnds(segments []Segment) []float64 {
	ends := make([]float64, len(segments))
	for i, seg := range segments {
		switch {
		case i+1 < len(segments) && segments[i+1].Start > seg.Start:
			ends[i] = segments[i+1].Start
		case seg.Duration > 0:
			ends[i] = seg.Start + seg.Duration
		default:
			ends[i] = seg.Start + lastSegmentSeconds
		}
	}
	return ends
}
