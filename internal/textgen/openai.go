package textgen

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// implements Generator using OpenAI Chat Completions
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	options Options
}

func NewOpenAIGenerator(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	// Retries are owned by the digest pool; the SDK's own retry loop would
	// multiply the attempt budget.
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))

	model := opts.Model
	if model == "" {
		model = "gpt-5-mini"
	}

	return &OpenAIGenerator{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	completion, err := g.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(BuildPrompt(g.options, req)),
			},
			Model: g.model,
		},
	)
	if err != nil {
		return "", classify(fmt.Errorf("openai generate: %w", err))
	}

	if completion == nil || len(completion.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := cleanResponse(completion.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
