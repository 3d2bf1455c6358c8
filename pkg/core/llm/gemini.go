package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// geminiInlineTypes are the document types Gemini reads natively.
var geminiInlineTypes = map[string]bool{
	"application/pdf": true,
	"text/csv":        true,
	"image/jpeg":      true,
	"image/png":       true,
}

// GeminiProvider implements the Provider interface for Google's Gemini models.
type GeminiProvider struct {
	Model  string // e.g. "gemini-2.0-flash"
	APIKey string // falls back to GEMINI_API_KEY
}

// Ensure interface compliance
var _ DocumentProvider = (*GeminiProvider)(nil)

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) SupportsDocument(mimeType string) bool {
	return geminiInlineTypes[mimeType]
}

// Generate sends a generateContent request using the official GenAI SDK.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	model := p.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create GenAI client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.1)),
	}
	if req.Mode == ModeJSON {
		config.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	var parts []*genai.Part
	if req.Document != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: req.Document.MIMEType, Data: req.Document.Data},
		})
	}
	parts = append(parts, &genai.Part{Text: req.UserText()})
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	return result.Text(), nil
}
