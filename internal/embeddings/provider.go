package embeddings

import (
	"context"
	"math"
	"strings"

	"github.com/suPer8Hu/learning-buddy/internal/config"
)

// Provider defines a simple embeddings provider interface.
// Implementations should be concurrency-safe.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string
	// Embed returns one embedding per input string.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// New constructs a provider from config. EMBEDDINGS_PROVIDER: "openai",
// "ollama", or empty for disabled (nil).
func New(cfg config.Config) Provider {
	switch strings.ToLower(strings.TrimSpace(cfg.EmbeddingsProvider)) {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingsModel)
	case "ollama":
		return NewOllama(cfg.OllamaBaseURL, cfg.EmbeddingsModel)
	default:
		return nil
	}
}

// Cosine returns the cosine similarity of a and b over their common prefix,
// or 0 when either is empty or zero.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na <= 0 || nb <= 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func f64to32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = float32(v[i])
	}
	return out
}
