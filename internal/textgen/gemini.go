package textgen

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// implements Generator using Google Gemini
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	options Options
}

func NewGeminiGenerator(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiGenerator{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(BuildPrompt(g.options, req)),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", classify(fmt.Errorf("gemini generate: %w", err))
	}

	if result == nil || len(result.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var text string
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
		if text != "" {
			break
		}
	}

	text = cleanResponse(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
