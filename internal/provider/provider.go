// Package provider abstracts the external reasoning backends. The
// engine only ever needs two primitives: turn a prompt into text, and
// turn text into a vector. Consumers depend on this interface instead
// of a concrete client.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Provider is a single request/response reasoning backend.
type Provider interface {
	// Generate sends one prompt and returns the model's text response.
	Generate(ctx context.Context, prompt string) (string, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Kind selects a provider implementation.
type Kind string

const (
	KindGemini Kind = "GEMINI"
	KindOllama Kind = "OLLAMA"
	KindMock   Kind = "MOCK"
)

// Options carries the configuration for provider construction.
type Options struct {
	Kind Kind

	GeminiAPIKey  string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string
	EmbedModel    string
}

// New builds the configured provider. Missing credentials for the
// selected kind is a construction error, which callers treat as fatal
// at startup.
func New(opts Options) (Provider, error) {
	switch Kind(strings.ToUpper(string(opts.Kind))) {
	case KindGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("provider GEMINI selected but no API key configured (set ENGRAM_GEMINI_API_KEY)")
		}
		return NewGemini(opts.GeminiAPIKey, opts.GeminiModel, opts.EmbedModel), nil
	case KindOllama:
		if opts.OllamaBaseURL == "" {
			return nil, fmt.Errorf("provider OLLAMA selected but no base URL configured")
		}
		return NewOllama(opts.OllamaBaseURL, opts.OllamaModel, opts.EmbedModel), nil
	case KindMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", opts.Kind)
	}
}
