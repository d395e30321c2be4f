package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type GeminiClient struct {
	client         *genai.Client
	embeddingModel string
	dimensions     int32
}

type GeminiOption func(*GeminiClient)

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithDimensions sets the output dimensionality of generated vectors. All
// records in one collection must use the same dimensionality for similarity
// search to be meaningful.
func WithDimensions(dims int32) GeminiOption {
	return func(g *GeminiClient) {
		g.dimensions = dims
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:         client,
		embeddingModel: "gemini-embedding-001",
		dimensions:     128,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Embed generates an embedding vector for the given text.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float64, error) {
	cfg := &genai.EmbedContentConfig{}
	if g.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(g.dimensions)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}
	if len(resp.Embeddings) == 0 {
		return nil, goerr.New("embedding response is empty")
	}

	values := resp.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}

	return vector, nil
}
