package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const extractionSystemPrompt = `Extract the full readable text of the document provided by the user, in reading order.
Keep headings, definitions, formulas and worked examples. Drop page headers, footers and page numbers.
Output only the extracted text.`

// ExtractDocument uses Gemini vision to read text out of PDFs that have no text layer.
// System prompt holds instructions; user message is the document, sent as-is.
func (c *Client) ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error) {
	if c.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	model := c.genaiClient.GenerativeModel(c.modelExtract)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractionSystemPrompt)},
		Role:  "system",
	}

	resp, err := model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: data})
	if err != nil {
		return "", fmt.Errorf("gemini vision failed: %w", err)
	}

	var result strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				result.WriteString(string(text))
			}
		}
	}

	if strings.TrimSpace(result.String()) == "" {
		return "", fmt.Errorf("gemini vision returned no text")
	}
	return result.String(), nil
}
