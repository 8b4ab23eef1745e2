package ai

import (
	"errors"
	"time"

	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

// GeneratorConfig configures the OpenAI-compatible embedding generator.
// One model is configured per modality; all models are served through the
// same base URL and API key. The image model must accept an image URL as
// its input payload (CLIP-style multimodal embedding endpoint).
type GeneratorConfig struct {
	APIKey         string
	BaseURL        string
	Models         map[store.Modality]string
	Timeout        time.Duration
	MaxConcurrency int64
}

// NewGeneratorConfigFromProfile creates generator config from the profile.
func NewGeneratorConfigFromProfile(p *profile.Profile) *GeneratorConfig {
	return &GeneratorConfig{
		APIKey:  p.EmbeddingAPIKey,
		BaseURL: p.EmbeddingBaseURL,
		Models: map[store.Modality]string{
			store.ModalityImage:        p.EmbeddingImageModel,
			store.ModalityTextClip:     p.EmbeddingTextClipModel,
			store.ModalityTextSentence: p.EmbeddingTextSentenceModel,
		},
		Timeout:        p.EmbeddingTimeout,
		MaxConcurrency: p.EmbeddingMaxConcurrency,
	}
}

// Validate checks the generator configuration.
func (c *GeneratorConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	for _, m := range store.Modalities {
		if c.Models[m] == "" {
			return errors.New("embedding model missing for modality " + string(m))
		}
	}
	return nil
}
