// Package ai sends prompts to a text generation provider and returns the raw reply.
package ai

import (
	"context"
	"github.com/myrjola/casegen/internal/errors"
	"log/slog"
	"strings"
	"time"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// SimulationCredential routes a request to the offline simulator. An empty credential does the same.
const SimulationCredential = "simulation"

var ErrUnknownProvider = errors.NewSentinel("unknown generation provider")

// Request is one generation call.
type Request struct {
	Provider   Provider
	System     string
	User       string
	Credential string
	// Image is attached to the user message when set.
	Image         []byte
	ImageMIMEType string
}

// Simulated reports whether the request is served without a network call.
func (r Request) Simulated() bool {
	c := strings.TrimSpace(r.Credential)
	return c == "" || c == SimulationCredential
}

// Generator is implemented by Client and by test doubles.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Config struct {
	OpenAIModel    string
	GeminiModel    string
	AnthropicModel string
	MaxTokens      int
	// Timeout bounds a single call. Zero leaves the deadline to the context.
	Timeout time.Duration
}

const (
	DefaultOpenAIModel    = "gpt-4-turbo-preview"
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
	DefaultMaxTokens      = 8192
)

func (c Config) withDefaults() Config {
	if c.OpenAIModel == "" {
		c.OpenAIModel = DefaultOpenAIModel
	}
	if c.GeminiModel == "" {
		c.GeminiModel = DefaultGeminiModel
	}
	if c.AnthropicModel == "" {
		c.AnthropicModel = DefaultAnthropicModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

type providerFunc func(ctx context.Context, cfg Config, req Request) (string, error)

type Client struct {
	logger    *slog.Logger
	cfg       Config
	simulator *Simulator
	providers map[Provider]providerFunc
}

func NewClient(logger *slog.Logger, cfg Config) *Client {
	return &Client{
		logger:    logger.With(slog.String("source", "AIClient")),
		cfg:       cfg.withDefaults(),
		simulator: NewSimulator(),
		providers: map[Provider]providerFunc{
			ProviderOpenAI:    generateOpenAI,
			ProviderGemini:    generateGemini,
			ProviderAnthropic: generateAnthropic,
		},
	}
}

// Generate returns the raw text reply to req. Provider errors are returned with the provider's message intact.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	phase := PhaseFrom(ctx)
	attrs := []slog.Attr{
		slog.String("provider", string(req.Provider)),
		slog.String("phase", phase.Name),
		slog.Int("system_bytes", len(req.System)),
		slog.Int("user_bytes", len(req.User)),
	}

	if req.Simulated() {
		text, err := c.simulator.Generate(ctx, req)
		if err != nil {
			return "", errors.Wrap(err, "simulate generation")
		}
		c.logger.LogAttrs(ctx, slog.LevelDebug, "simulated generation",
			append(attrs, slog.Int("response_bytes", len(text)))...)
		return text, nil
	}

	generate, ok := c.providers[req.Provider]
	if !ok {
		return "", errors.Wrap(ErrUnknownProvider, "select provider", slog.String("provider", string(req.Provider)))
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := generate(ctx, c.cfg, req)
	attrs = append(attrs, slog.Duration("duration", time.Since(start)))
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "generation failed", append(attrs, errors.SlogError(err))...)
		return "", err
	}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "generation completed",
		append(attrs, slog.Int("response_bytes", len(text)))...)
	return text, nil
}
