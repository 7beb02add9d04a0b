package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suPer8Hu/learning-buddy/internal/embeddings"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"golang.org/x/sync/errgroup"
)

const (
	MethodKeyword   = "keyword"
	MethodEmbedding = "embedding"

	keywordConfidence = 0.7
	embedBatchSize    = 16
	maxCandidates     = 48
)

// Concept is one extracted mention, independent of how it was found.
type Concept struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Extractor finds known concepts in conversation text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Concept, error)
}

// VocabConcept is a known domain concept and the phrases that trigger it.
type VocabConcept struct {
	Name     string
	Type     string
	Keywords []string
}

// DefaultVocabulary covers the AI-in-the-classroom topics the buddy tutors on.
var DefaultVocabulary = []VocabConcept{
	{Name: "prompt engineering", Type: "ai_concept", Keywords: []string{"prompt engineering", "prompting", "prompt"}},
	{Name: "machine learning", Type: "ai_concept", Keywords: []string{"machine learning", "training data", "model training"}},
	{Name: "large language models", Type: "ai_concept", Keywords: []string{"large language model", "llm", "chatgpt", "gpt"}},
	{Name: "ai hallucinations", Type: "ai_concept", Keywords: []string{"hallucination", "made up facts", "inaccurate answer"}},
	{Name: "ai ethics", Type: "ai_concept", Keywords: []string{"ethics", "bias", "fairness", "privacy"}},
	{Name: "academic integrity", Type: "teaching_concept", Keywords: []string{"cheating", "plagiarism", "academic integrity"}},
	{Name: "lesson planning", Type: "teaching_concept", Keywords: []string{"lesson plan", "lesson planning", "curriculum"}},
	{Name: "assessment", Type: "teaching_concept", Keywords: []string{"assessment", "rubric", "grading", "quiz"}},
	{Name: "differentiation", Type: "teaching_concept", Keywords: []string{"differentiation", "differentiated", "diverse learners"}},
	{Name: "student engagement", Type: "teaching_concept", Keywords: []string{"engagement", "motivation", "engaged"}},
	{Name: "classroom management", Type: "teaching_concept", Keywords: []string{"classroom management", "behavior", "routines"}},
	{Name: "feedback", Type: "teaching_concept", Keywords: []string{"feedback", "comments on student work"}},
}

// KeywordExtractor matches vocabulary names and keywords as case-insensitive substrings.
type KeywordExtractor struct {
	vocab []VocabConcept
}

func NewKeywordExtractor(vocab []VocabConcept) *KeywordExtractor {
	if len(vocab) == 0 {
		vocab = DefaultVocabulary
	}
	return &KeywordExtractor{vocab: vocab}
}

func (k *KeywordExtractor) Extract(_ context.Context, text string) ([]Concept, error) {
	lower := strings.ToLower(text)
	var out []Concept
	for _, v := range k.vocab {
		if containsAny(lower, v) {
			out = append(out, Concept{Name: v.Name, Type: v.Type, Confidence: keywordConfidence, Method: MethodKeyword})
		}
	}
	return out, nil
}

func containsAny(lower string, v VocabConcept) bool {
	if strings.Contains(lower, strings.ToLower(v.Name)) {
		return true
	}
	for _, kw := range v.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// EmbeddingExtractor compares candidate phrases against the vocabulary in
// embedding space. Call-time failures fall back to keyword matching.
type EmbeddingExtractor struct {
	provider  embeddings.Provider
	vocab     []VocabConcept
	vectors   [][]float32
	threshold float64
	fallback  *KeywordExtractor
	log       *logger.Logger
}

// NewEmbeddingExtractor embeds the vocabulary up front; an error here means
// the backend is unusable.
func NewEmbeddingExtractor(ctx context.Context, provider embeddings.Provider, vocab []VocabConcept, threshold float64, log *logger.Logger) (*EmbeddingExtractor, error) {
	if provider == nil {
		return nil, errors.New("memory: embeddings provider is nil")
	}
	if len(vocab) == 0 {
		vocab = DefaultVocabulary
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.75
	}
	if log == nil {
		log = logger.NewNop()
	}

	texts := make([]string, len(vocab))
	for i, v := range vocab {
		texts[i] = v.Name
	}
	vectors, err := embedAll(ctx, provider, texts)
	if err != nil {
		return nil, fmt.Errorf("embed vocabulary: %w", err)
	}
	return &EmbeddingExtractor{
		provider:  provider,
		vocab:     vocab,
		vectors:   vectors,
		threshold: threshold,
		fallback:  NewKeywordExtractor(vocab),
		log:       log,
	}, nil
}

func (e *EmbeddingExtractor) Extract(ctx context.Context, text string) ([]Concept, error) {
	candidates := candidatePhrases(text)
	if len(candidates) == 0 {
		return nil, nil
	}
	vecs, err := embedAll(ctx, e.provider, candidates)
	if err != nil {
		e.log.Warn("embedding extraction failed, using keywords", "provider", e.provider.Name(), "error", err)
		return e.fallback.Extract(ctx, text)
	}

	best := make([]float64, len(e.vocab))
	for _, cv := range vecs {
		for i, vv := range e.vectors {
			if s := embeddings.Cosine(cv, vv); s > best[i] {
				best[i] = s
			}
		}
	}

	var out []Concept
	for i, s := range best {
		if s >= e.threshold {
			out = append(out, Concept{Name: e.vocab[i].Name, Type: e.vocab[i].Type, Confidence: s, Method: MethodEmbedding})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

// embedAll embeds in fixed-size batches, a few batches at a time, keeping input order.
func embedAll(ctx context.Context, p embeddings.Provider, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	var mu sync.Mutex
	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := p.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embeddings: got %d vectors for %d inputs", len(vecs), end-start)
			}
			mu.Lock()
			copy(out[start:end], vecs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// candidatePhrases splits text into sentences, plus the 1-3 word windows of
// short texts.
func candidatePhrases(text string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || len(out) >= maxCandidates {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	for _, s := range sentences {
		add(s)
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) <= 12 {
		for n := 1; n <= 3; n++ {
			for i := 0; i+n <= len(words); i++ {
				add(strings.Trim(strings.Join(words[i:i+n], " "), ".,!?;:\"'()"))
			}
		}
	}
	return out
}

// NewExtractor picks the embedding extractor when a provider is configured
// and answers a probe, and the keyword extractor otherwise.
func NewExtractor(ctx context.Context, provider embeddings.Provider, vocab []VocabConcept, threshold float64, log *logger.Logger) Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	if provider == nil {
		log.Info("concept extractor selected", "method", MethodKeyword)
		return NewKeywordExtractor(vocab)
	}
	ex, err := NewEmbeddingExtractor(ctx, provider, vocab, threshold, log)
	if err != nil {
		log.Warn("embedding backend unavailable, using keyword extractor", "provider", provider.Name(), "error", err)
		return NewKeywordExtractor(vocab)
	}
	log.Info("concept extractor selected", "method", MethodEmbedding, "provider", provider.Name())
	return ex
}
