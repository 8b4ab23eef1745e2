package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refind-ai/refind/store"
)

func newStubEndpoint(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[3,4]}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGenerator(t *testing.T, baseURL string, timeout time.Duration) Generator {
	t.Helper()
	g, err := NewGenerator(&GeneratorConfig{
		APIKey:  "sk-test",
		BaseURL: baseURL,
		Models: map[store.Modality]string{
			store.ModalityImage:        "clip-img",
			store.ModalityTextClip:     "clip-txt",
			store.ModalityTextSentence: "sentence",
		},
		Timeout: timeout,
	})
	require.NoError(t, err)
	return g
}

func TestGenerate(t *testing.T) {
	t.Run("returns a unit-norm vector", func(t *testing.T) {
		srv := newStubEndpoint(t, 0)
		g := newTestGenerator(t, srv.URL, 0)

		v, err := g.Generate(context.Background(), store.ModalityTextSentence, "black wallet")
		require.NoError(t, err)
		require.Len(t, v, 2)
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("rejects an unconfigured modality and an empty payload", func(t *testing.T) {
		srv := newStubEndpoint(t, 0)
		g := newTestGenerator(t, srv.URL, 0)

		_, err := g.Generate(context.Background(), store.Modality("audio"), "x")
		assert.Error(t, err)
		_, err = g.Generate(context.Background(), store.ModalityTextClip, "")
		assert.Error(t, err)
	})

	t.Run("configured timeout bounds a slow endpoint", func(t *testing.T) {
		srv := newStubEndpoint(t, 500*time.Millisecond)
		g := newTestGenerator(t, srv.URL, 20*time.Millisecond)

		start := time.Now()
		_, err := g.Generate(context.Background(), store.ModalityTextSentence, "black wallet")
		require.Error(t, err)
		assert.Less(t, time.Since(start), 400*time.Millisecond)
	})
}

func TestGeneratorReady(t *testing.T) {
	srv := newStubEndpoint(t, 0)
	g := newTestGenerator(t, srv.URL, time.Second)
	require.NoError(t, g.Ready(context.Background()))

	srv.Close()
	assert.Error(t, g.Ready(context.Background()))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, Normalize([]float32{3, 4}))
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}
