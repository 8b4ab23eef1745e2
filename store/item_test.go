package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection(t *testing.T) {
	assert.Equal(t, CollectionFound, CollectionLost.Opposite())
	assert.Equal(t, CollectionLost, CollectionFound.Opposite())
	assert.True(t, CollectionLost.Valid())
	assert.True(t, CollectionFound.Valid())
	assert.False(t, Collection("items").Valid())
	assert.False(t, Collection("").Valid())
}

func TestEmbeddings(t *testing.T) {
	t.Run("empty has nothing", func(t *testing.T) {
		e := &Embeddings{}
		assert.False(t, e.Any())
		assert.Empty(t, e.Present())
		for _, m := range Modalities {
			assert.False(t, e.Has(m))
			assert.Nil(t, e.ByModality(m))
		}
	})

	t.Run("set and read back per modality", func(t *testing.T) {
		e := &Embeddings{}
		e.SetModality(ModalityTextClip, []float32{1, 2})
		assert.True(t, e.Any())
		assert.True(t, e.Has(ModalityTextClip))
		assert.False(t, e.Has(ModalityImage))
		assert.Equal(t, []float32{1, 2}, e.ByModality(ModalityTextClip))
		assert.Equal(t, []Modality{ModalityTextClip}, e.Present())
	})

	t.Run("present follows canonical order", func(t *testing.T) {
		e := &Embeddings{}
		e.SetModality(ModalityTextSentence, []float32{1})
		e.SetModality(ModalityImage, []float32{1})
		assert.Equal(t, []Modality{ModalityImage, ModalityTextSentence}, e.Present())
	})

	t.Run("unknown modality is ignored", func(t *testing.T) {
		e := &Embeddings{}
		e.SetModality(Modality("audio"), []float32{1})
		assert.False(t, e.Any())
		assert.Nil(t, e.ByModality(Modality("audio")))
	})
}

func TestFindItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		find    *FindItem
		wantErr bool
	}{
		{"valid", &FindItem{Collection: CollectionLost}, false},
		{"valid with limit", &FindItem{Collection: CollectionFound, Limit: 10}, false},
		{"invalid collection", &FindItem{Collection: "nope"}, true},
		{"negative limit", &FindItem{Collection: CollectionLost, Limit: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.find.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
