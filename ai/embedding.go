package ai

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/refind-ai/refind/internal/metrics"
	"github.com/refind-ai/refind/store"
)

// Generator produces one unit-norm embedding vector per (modality, payload)
// request. The payload is free text for the text modalities and an image URL
// for the image modality. Each modality request is independent; callers are
// expected to treat single-modality failures as non-fatal.
type Generator interface {
	Generate(ctx context.Context, modality store.Modality, payload string) ([]float32, error)

	// Ready reports whether the generator can serve requests.
	Ready(ctx context.Context) error
}

type openaiGenerator struct {
	client  *openai.Client
	models  map[store.Modality]string
	timeout time.Duration

	// Bounds concurrent upstream calls; embedding endpoints are the most
	// expensive shared resource the engine touches.
	sem *semaphore.Weighted
}

// NewGenerator creates a Generator backed by an OpenAI-compatible embedding
// endpoint (siliconflow, openai, ollama, jina, etc.).
func NewGenerator(cfg *GeneratorConfig) (Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	return &openaiGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		models:  cfg.Models,
		timeout: cfg.Timeout,
		sem:     semaphore.NewWeighted(maxConcurrency),
	}, nil
}

func (g *openaiGenerator) Generate(ctx context.Context, modality store.Modality, payload string) ([]float32, error) {
	model, ok := g.models[modality]
	if !ok {
		return nil, errors.Errorf("no model configured for modality %s", modality)
	}
	if payload == "" {
		return nil, errors.New("empty payload")
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "acquire embedding slot")
	}
	defer g.sem.Release(1)

	req := openai.EmbeddingRequest{
		Input: []string{payload},
		Model: openai.EmbeddingModel(model),
	}

	resp, err := g.client.CreateEmbeddings(ctx, req)
	if err != nil {
		metrics.EmbeddingsGenerated.WithLabelValues(string(modality), "error").Inc()
		return nil, errors.Wrapf(err, "create embedding for modality %s", modality)
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingsGenerated.WithLabelValues(string(modality), "error").Inc()
		return nil, errors.Errorf("empty embedding response for modality %s", modality)
	}

	metrics.EmbeddingsGenerated.WithLabelValues(string(modality), "ok").Inc()
	return Normalize(resp.Data[0].Embedding), nil
}

// Ready checks the endpoint with a minimal text embedding request.
func (g *openaiGenerator) Ready(ctx context.Context) error {
	_, err := g.Generate(ctx, store.ModalityTextSentence, "ping")
	return err
}

// Normalize scales v to unit L2 norm in place and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
