// Package semantic embeds findings into dense vectors and searches them for
// similar historical issues. Everything degrades gracefully: when no embedding
// backend is reachable, operations return empty results rather than errors so
// the rest of the analysis keeps running.
package semantic

import (
	"context"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

const (
	// maxEmbedChars caps text sent to the embedding backend. Longer inputs
	// are truncated; sentence transformer models cut off far earlier anyway.
	maxEmbedChars = 8000

	// defaultTopK is the similarity search result count when the caller
	// does not specify one.
	defaultTopK = 5

	// maxCorpus bounds how many findings a single search scans.
	maxCorpus = 1000
)

// DefaultMinSimilarity is the clustering threshold for pattern analysis.
const DefaultMinSimilarity = 0.75

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Available(ctx context.Context) bool
	Dimension() int
}

// Index wraps an embedding backend with finding-oriented operations.
type Index struct {
	embedder Embedder
	logger   hclog.Logger
}

// New creates an Index. embedder may be nil, in which case the index reports
// unavailable and every operation returns empty results.
func New(embedder Embedder, logger hclog.Logger) *Index {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Index{embedder: embedder, logger: logger}
}

// Available reports whether the embedding backend can serve requests.
func (x *Index) Available(ctx context.Context) bool {
	return x.embedder != nil && x.embedder.Available(ctx)
}

// Embed returns the vector for a single text, or nil when the backend is
// unavailable or fails.
func (x *Index) Embed(ctx context.Context, text string) []float32 {
	vectors := x.EmbedBatch(ctx, []string{text})
	if len(vectors) == 0 {
		return nil
	}
	return vectors[0]
}

// EmbedBatch returns one vector per text, or nil when the backend is
// unavailable or fails. Inputs are truncated to maxEmbedChars.
func (x *Index) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if !x.Available(ctx) || len(texts) == 0 {
		return nil
	}

	truncated := make([]string, len(texts))
	for i, text := range texts {
		truncated[i] = truncateText(text, maxEmbedChars)
	}

	vectors, err := x.embedder.Embed(ctx, truncated)
	if err != nil {
		x.logger.Warn("embedding failed", "texts", len(texts), "error", err)
		return nil
	}
	return vectors
}

// truncateText cuts on a rune boundary so a multi-byte character is never
// split mid-sequence.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// EmbedFindings fills in the Embedding field of each finding from its title
// and description. Findings keep nil embeddings when the backend is down.
func (x *Index) EmbedFindings(ctx context.Context, findings []domain.Finding) {
	if len(findings) == 0 {
		return
	}

	texts := make([]string, len(findings))
	for i, f := range findings {
		texts[i] = findingText(f)
	}

	vectors := x.EmbedBatch(ctx, texts)
	if len(vectors) != len(findings) {
		return
	}
	for i := range findings {
		findings[i].Embedding = vectors[i]
	}
}

// Match is a similarity search hit.
type Match struct {
	Finding    domain.Finding
	Similarity float64
}

// FindSimilar ranks corpus findings by cosine similarity to the query text.
// Findings without embeddings are skipped. topK <= 0 means defaultTopK.
func (x *Index) FindSimilar(ctx context.Context, query string, corpus []domain.Finding, topK int) []Match {
	if topK <= 0 {
		topK = defaultTopK
	}

	queryVec := x.Embed(ctx, query)
	if queryVec == nil {
		return nil
	}

	if len(corpus) > maxCorpus {
		corpus = corpus[:maxCorpus]
	}

	matches := make([]Match, 0, len(corpus))
	for _, f := range corpus {
		if f.Embedding == nil {
			continue
		}
		matches = append(matches, Match{
			Finding:    f,
			Similarity: CosineSimilarity(queryVec, f.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func findingText(f domain.Finding) string {
	return f.Title + "\n" + f.Description
}
