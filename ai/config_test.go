package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

func TestNewGeneratorConfigFromProfile(t *testing.T) {
	p := &profile.Profile{
		EmbeddingAPIKey:            "sk-test",
		EmbeddingBaseURL:           "https://embed.example.com/v1",
		EmbeddingImageModel:        "clip-img",
		EmbeddingTextClipModel:     "clip-txt",
		EmbeddingTextSentenceModel: "sentence",
		EmbeddingTimeout:           45 * time.Second,
		EmbeddingMaxConcurrency:    8,
	}

	cfg := NewGeneratorConfigFromProfile(p)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "https://embed.example.com/v1", cfg.BaseURL)
	assert.Equal(t, "clip-img", cfg.Models[store.ModalityImage])
	assert.Equal(t, "clip-txt", cfg.Models[store.ModalityTextClip])
	assert.Equal(t, "sentence", cfg.Models[store.ModalityTextSentence])
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, int64(8), cfg.MaxConcurrency)
	require.NoError(t, cfg.Validate())
}

func TestGeneratorConfigValidate(t *testing.T) {
	valid := func() *GeneratorConfig {
		return &GeneratorConfig{
			APIKey: "sk-test",
			Models: map[store.Modality]string{
				store.ModalityImage:        "clip-img",
				store.ModalityTextClip:     "clip-txt",
				store.ModalityTextSentence: "sentence",
			},
		}
	}

	require.NoError(t, valid().Validate())

	missingKey := valid()
	missingKey.APIKey = ""
	assert.Error(t, missingKey.Validate())

	missingModel := valid()
	delete(missingModel.Models, store.ModalityTextSentence)
	assert.Error(t, missingModel.Validate())
}
