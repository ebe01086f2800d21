package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// Generate sends a system prompt and a user prompt to the chat model and returns its text.
func (c *Client) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: prompt}}},
	}
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("gemini returned no choices")
	}

	text := resp.Choices[0].Content
	logGeminiResponse("Generate", text)
	log.Debug().
		Str("model", c.model).
		Int("prompt_length", len(prompt)).
		Int("response_length", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Generation complete")

	return strings.TrimSpace(text), nil
}

// CreateEmbedding embeds texts with the configured embedding model.
func (c *Client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	vectors, err := c.embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	return vectors, nil
}
