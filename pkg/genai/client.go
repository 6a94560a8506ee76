// Package genai wraps the Anthropic Messages API behind the narrow
// surface the pipeline consumes: prompt in, raw text out, with a shared
// system prompt across a batch and a minimum-delay gate between calls.
package genai

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client defines the generation operations used by the pipeline.
type Client interface {
	// Generate sends a single prompt and returns the raw text response.
	Generate(ctx context.Context, userPrompt, systemPrompt string) (string, error)
	// GenerateBatch sends each prompt under the same system prompt and
	// returns the raw responses in prompt order.
	GenerateBatch(ctx context.Context, userPrompts []string, systemPrompt string) ([]string, error)
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithMaxTokens sets the per-response token cap.
func WithMaxTokens(n int64) Option {
	return func(c *sdkClient) {
		c.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *sdkClient) {
		c.temperature = &t
	}
}

// WithMinDelay enforces a minimum wall-clock delay between consecutive
// API calls.
func WithMinDelay(d time.Duration) Option {
	return func(c *sdkClient) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithRequestOptions passes extra options to the underlying SDK client
// (custom base URL, HTTP client).
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *sdkClient) {
		c.sdkOpts = append(c.sdkOpts, opts...)
	}
}

type sdkClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature *float64
	limiter     *rate.Limiter
	sdkOpts     []option.RequestOption
}

// NewClient creates a client backed by the official anthropic-sdk-go.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		model:     "claude-haiku-4-5-20251001",
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.sdkOpts...)...)
	return c
}

func (c *sdkClient) Generate(ctx context.Context, userPrompt, systemPrompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "genai: rate gate")
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		// The system prompt repeats across every item of a batch, so it
		// is marked cacheable.
		params.System = []sdk.TextBlockParam{{
			Text:         systemPrompt,
			CacheControl: sdk.NewCacheControlEphemeralParam(),
		}}
	}
	if c.temperature != nil {
		params.Temperature = sdk.Float(*c.temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "genai: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (c *sdkClient) GenerateBatch(ctx context.Context, userPrompts []string, systemPrompt string) ([]string, error) {
	out := make([]string, len(userPrompts))
	for i, prompt := range userPrompts {
		resp, err := c.Generate(ctx, prompt, systemPrompt)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("genai: batch item %d", i))
		}
		out[i] = resp
	}
	zap.L().Debug("genai: batch complete",
		zap.String("model", c.model),
		zap.Int("prompts", len(userPrompts)),
	)
	return out, nil
}
