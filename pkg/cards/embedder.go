package cards

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Embedder turns text into vectors for the card index
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	GetDimensions() int
}

// EmbedderConfig selects and configures an embedder
type EmbedderConfig struct {
	// Provider is "hash" or "ollama"
	Provider   string
	Model      string
	BaseURL    string
	Dimensions int
}

// NewEmbedder builds the embedder named by cfg.Provider
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		return NewHashEmbedder(cfg.Dimensions), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

// HashEmbedder embeds text offline by hashing its words into buckets.
// Texts sharing words score as similar.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, h.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		sum := f.Sum32()

		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		embedding[int(sum%uint32(h.dimensions))] += sign
	}

	// chromem cannot normalise a zero vector
	for _, v := range embedding {
		if v != 0 {
			return embedding, nil
		}
	}
	embedding[0] = 1
	return embedding, nil
}

func (h *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := h.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = embedding
	}
	return results, nil
}

func (h *HashEmbedder) GetDimensions() int {
	return h.dimensions
}

// OllamaEmbedder embeds text with an Ollama embedding model
type OllamaEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
}

// NewOllamaEmbedder connects to Ollama at baseURL. Dimensions are learned
// from the first embedding.
func NewOllamaEmbedder(model, baseURL string) (*OllamaEmbedder, error) {
	if model == "" {
		model = "nomic-embed-text"
	}

	opts := []ollama.Option{ollama.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &OllamaEmbedder{embedder: embedder, model: model}, nil
}

func (o *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	embedding, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama %s embedding failed: %w", o.model, err)
	}
	o.dimensions = len(embedding)
	return embedding, nil
}

func (o *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama %s embedding failed: %w", o.model, err)
	}
	if len(vectors) > 0 {
		o.dimensions = len(vectors[0])
	}
	return vectors, nil
}

func (o *OllamaEmbedder) GetDimensions() int {
	return o.dimensions
}
