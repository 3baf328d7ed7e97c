package normalize

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// GeminiCompleter is a Completer backed by the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

var _ Completer = (*GeminiCompleter)(nil)

// NewGeminiCompleter creates a client authenticated with apiKey. baseURL
// overrides the API endpoint and is normally empty.
func NewGeminiCompleter(ctx context.Context, apiKey, model, baseURL string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, errors.New("NewGeminiCompleter: api key is empty")
	}
	if model == "" {
		model = DefaultModelName
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiCompleter: create genai client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete sends prompt as one user turn with low temperature sampling.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
		TopK:        genai.Ptr[float32](40),
		TopP:        genai.Ptr[float32](0.95),
	})
	if err != nil {
		return "", fmt.Errorf("Complete: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", errors.New("Complete: empty response from model")
	}
	return rawText, nil
}
