package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	geminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	geminiTimeout  = 60 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Gemini talks to the Google Generative Language API.
type Gemini struct {
	apiKey     string
	model      string
	embedModel string
	baseURL    string
	httpClient *http.Client
}

// NewGemini creates a Gemini client with the given API key and models.
func NewGemini(apiKey, model, embedModel string) *Gemini {
	return &Gemini{
		apiKey:     apiKey,
		model:      model,
		embedModel: embedModel,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{
			Timeout: geminiTimeout,
		},
	}
}

// NewGeminiWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewGeminiWithBaseURL(apiKey, model, embedModel, baseURL string) *Gemini {
	g := NewGemini(apiKey, model, embedModel)
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends one prompt and returns the first candidate's text,
// retrying with exponential backoff when rate limited.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)

	var lastErr error
	for attempt := range maxRetries {
		text, err := g.doGenerate(ctx, url, body)
		if err == nil {
			return text, nil
		}
		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (g *Gemini) doGenerate(ctx context.Context, url string, body []byte) (string, error) {
	resp, err := g.post(ctx, url, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidates in response")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

type embedContentRequest struct {
	Content geminiContent `json:"content"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed returns the embedding vector for the given text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedContentRequest{
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", g.baseURL, g.embedModel)
	resp, err := g.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result embedContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return result.Embedding.Values, nil
}

func (g *Gemini) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}
