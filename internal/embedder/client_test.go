package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbedCachesIdenticalText(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 2, 3}})
	}))
	defer srv.Close()

	c := New(DefaultOptions(srv.URL, "test-model"))
	v1, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, v1)

	v2, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, c.CacheSize())
}

func TestEmbedBatchEmbedsEachText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.5}})
	}))
	defer srv.Close()

	c := New(DefaultOptions(srv.URL, "test-model"))
	out, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, 3, c.CacheSize())
}
