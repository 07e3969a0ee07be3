// Package classify turns one raw captured thought into a typed,
// structured record with a confidence score. It makes exactly one
// provider call per item and never retries: a parse or provider failure
// is fatal for that item, and the caller decides what to do with it.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/engram/internal/provider"
)

const defaultTimeout = 60 * time.Second

// Classifier classifies raw text via the configured provider.
type Classifier struct {
	provider provider.Provider
	timeout  time.Duration
}

// New creates a Classifier. If timeout is <= 0, it defaults to 60s.
func New(p provider.Provider, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Classifier{provider: p, timeout: timeout}
}

// Classify sends one thought to the provider and decodes the structured
// result. Callers must not pass empty content; the capture surface
// rejects it before it reaches the engine.
func (c *Classifier) Classify(ctx context.Context, content string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.provider.Generate(ctx, BuildPrompt(content))
	if err != nil {
		return Result{}, fmt.Errorf("classification call: %w", err)
	}

	return DecodeResult(raw)
}
