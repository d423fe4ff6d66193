// Package textgen wraps the hosted LLM APIs used to summarize transcript chunks.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is one chunk of transcript to summarize, plus where it sits in the video.
type Request struct {
	Text    string
	StartMs int64
	EndMs   int64
	Index   int
	Total   int
}

// Generator turns a transcript chunk into summary text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// text-generation service provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

type Options struct {
	Model    string
	Prompt   string // extra instructions appended to the built-in prompt
	MinWords int
	MaxWords int
}

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Factory creates a Generator for the given provider.
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Generator, error) {
	switch provider {
	case ProviderGemini:
		return NewGeminiGenerator(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAIGenerator(ctx, apiKey, opts)
	case ProviderAnthropic:
		return NewAnthropicGenerator(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported text generation provider: %s", provider)
	}
}

// BuildPrompt creates the chunk summarization prompt shared by all providers.
func BuildPrompt(opts Options, req Request) string {
	var sb strings.Builder

	switch {
	case req.Total > 1:
		sb.WriteString(fmt.Sprintf(
			"You are summarizing part %d of %d of a video transcript, covering %s to %s.\n\n",
			req.Index+1,
			req.Total,
			clock(req.StartMs),
			clock(req.EndMs),
		))
	case req.EndMs > req.StartMs:
		sb.WriteString(fmt.Sprintf(
			"You are summarizing a video transcript covering %s to %s.\n\n",
			clock(req.StartMs),
			clock(req.EndMs),
		))
	default:
		sb.WriteString("You are summarizing a transcript.\n\n")
	}

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("1. Write a concise prose summary of what is said in this part only.\n")
	sb.WriteString("2. Do not invent facts that are not in the transcript.\n")
	sb.WriteString("3. Do not use headings, bullet points or markdown.\n")
	switch {
	case opts.MinWords > 0 && opts.MaxWords > 0:
		sb.WriteString(fmt.Sprintf("4. Use between %d and %d words.\n", opts.MinWords, opts.MaxWords))
	case opts.MaxWords > 0:
		sb.WriteString(fmt.Sprintf("4. Use at most %d words.\n", opts.MaxWords))
	}

	if opts.Prompt != "" {
		sb.WriteString(fmt.Sprintf("\nAdditional instructions: %s\n", opts.Prompt))
	}

	sb.WriteString("\nTranscript:\n---\n")
	sb.WriteString(req.Text)
	sb.WriteString("\n---\n\nSummary:")

	return sb.String()
}

func clock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	if s >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "Summary:")
	return strings.TrimSpace(s)
}
