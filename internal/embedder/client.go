// Package embedder wraps an embedding backend with the same
// resilience story the teacher's HTTP clients carry: a circuit breaker
// trips after repeated backend failures, and a token-bucket limiter caps
// outbound request rate, grounded on pkg/resilience.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/agentdb/memory/pkg/fn"
	"github.com/agentdb/memory/pkg/ollama"
	"github.com/agentdb/memory/pkg/resilience"
)

// Client embeds task text through an Ollama-backed backend, caching
// identical-text lookups so a routing retry or repeated task string never
// re-embeds (spec.md §4.5 "Embed the task (cached if identical)").
type Client struct {
	backend *ollama.EmbedClient
	breaker *resilience.Breaker
	limiter *resilience.Limiter

	mu    sync.Mutex
	cache map[string][]float32
}

// Options configures the embedding client's resilience posture.
type Options struct {
	BaseURL string
	Model   string
	Breaker resilience.BreakerOpts
	Limiter resilience.LimiterOpts
}

// DefaultOptions mirrors the teacher's defaults for outbound HTTP calls.
func DefaultOptions(baseURL, model string) Options {
	return Options{
		BaseURL: baseURL,
		Model:   model,
		Breaker: resilience.DefaultBreakerOpts,
		Limiter: resilience.LimiterOpts{Rate: 20, Burst: 40},
	}
}

// New builds a Client.
func New(opts Options) *Client {
	return &Client{
		backend: ollama.NewEmbedClient(opts.BaseURL, opts.Model),
		breaker: resilience.NewBreaker(opts.Breaker),
		limiter: resilience.NewLimiter(opts.Limiter),
		cache:   make(map[string][]float32),
	}
}

// Embed returns the embedding for text, served from cache when the exact
// text was embedded before.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	c.mu.Lock()
	if v, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var vec []float32
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := c.backend.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = vec
	c.mu.Unlock()
	return vec, nil
}

// batchWorkers bounds how many texts EmbedBatch embeds concurrently; the
// rate limiter inside Embed still caps outbound request rate beyond this.
const batchWorkers = 8

// EmbedBatch embeds each text concurrently (cache hits short-circuit per
// item), returning the first error encountered across the batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := fn.ParMapResult(texts, batchWorkers, func(t string) fn.Result[[]float32] {
		return fn.FromPair(c.Embed(ctx, t))
	})
	collected := fn.Collect(results)
	return collected.Unwrap()
}

// CacheSize reports how many distinct texts are currently cached, mostly
// for embedding-cache budget accounting (internal/budget).
func (c *Client) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
