package textgen

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// implements Generator using Anthropic Claude
type AnthropicGenerator struct {
	client  anthropic.Client
	model   anthropic.Model
	options Options
}

func NewAnthropicGenerator(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))

	model := anthropic.Model(opts.Model)
	if opts.Model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}

	return &AnthropicGenerator{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	message, err := g.client.Messages.New(
		ctx,
		anthropic.MessageNewParams{
			Model:     g.model,
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(BuildPrompt(g.options, req)),
				),
			},
		},
	)
	if err != nil {
		return "", classify(fmt.Errorf("anthropic generate: %w", err))
	}

	if message == nil || len(message.Content) == 0 {
		return "", ErrEmptyResponse
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	text = cleanResponse(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
