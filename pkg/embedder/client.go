// Package embedder provides a client for the Jina embeddings API.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pathways-group/skillmap-cli/internal/resilience"
)

// Client defines the embedding operations used by the pipeline.
type Client interface {
	// Encode returns one embedding per input text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Option configures the embedder client.
type Option func(*httpClient)

// WithBaseURL sets a custom endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithModel overrides the default embedding model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithBatchSize caps how many texts are sent per API call.
func WithBatchSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithNormalize controls whether the API returns unit-length vectors.
func WithNormalize(normalize bool) Option {
	return func(c *httpClient) {
		c.normalized = normalize
	}
}

// WithMinDelay enforces a minimum wall-clock delay between consecutive
// API calls.
func WithMinDelay(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithCircuitBreaker guards API calls with a breaker so a failing
// upstream is shed quickly instead of retried across the whole corpus.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	model      string
	batchSize  int
	normalized bool
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	http       *http.Client
}

// NewClient creates a new Jina embeddings client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		baseURL:    "https://api.jina.ai/v1/embeddings",
		model:      "jina-embeddings-v3",
		batchSize:  128,
		normalized: true,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Normalized bool     `json:"normalized"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *httpClient) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "embedder: rate gate")
			}
		}

		chunk := texts[start:end]
		var batch [][]float32
		call := func(ctx context.Context) error {
			var err error
			batch, err = c.encodeBatch(ctx, chunk)
			return err
		}
		var err error
		if c.breaker != nil {
			err = c.breaker.Execute(ctx, call)
		} else {
			err = call(ctx)
		}
		if err != nil {
			return nil, eris.Wrap(err, "embedder: encode batch")
		}
		copy(out[start:end], batch)
	}

	zap.L().Debug("embedder: encoded texts",
		zap.String("model", c.model),
		zap.Int("texts", len(texts)),
	)
	return out, nil
}

func (c *httpClient) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{
		Model:      c.model,
		Input:      texts,
		Normalized: c.normalized,
	})
	if err != nil {
		return nil, eris.Wrap(err, "marshal request")
	}

	body, statusCode, err := c.retryDo(ctx, payload)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("status %d: %s", statusCode, string(body))
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "unmarshal response")
	}
	if len(result.Data) != len(texts) {
		return nil, eris.Errorf("got %d embeddings for %d texts", len(result.Data), len(texts))
	}

	// The API may return items out of order; index is authoritative.
	sort.Slice(result.Data, func(a, b int) bool {
		return result.Data[a].Index < result.Data[b].Index
	})
	out := make([][]float32, len(texts))
	for i, item := range result.Data {
		out[i] = item.Embedding
	}
	return out, nil
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo posts the payload with exponential backoff on transient
// failures, returning the response body and status on success.
func (c *httpClient) retryDo(ctx context.Context, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// Similarity returns the cosine similarity of two vectors, 0 when either
// has zero norm.
func Similarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
