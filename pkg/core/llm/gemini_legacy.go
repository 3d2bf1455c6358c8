package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	legacy "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LegacyGeminiProvider talks to Gemini through the older generative-ai-go SDK.
// Kept for deployments pinned to that client.
type LegacyGeminiProvider struct {
	Model  string
	APIKey string
}

var _ DocumentProvider = (*LegacyGeminiProvider)(nil)

func (p *LegacyGeminiProvider) Name() string { return "gemini-legacy" }

func (p *LegacyGeminiProvider) SupportsDocument(mimeType string) bool {
	return geminiInlineTypes[mimeType]
}

func (p *LegacyGeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := legacy.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create legacy Gemini client: %w", err)
	}
	defer client.Close()

	name := p.Model
	if name == "" {
		name = defaultGeminiModel
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(0.1)
	if req.Mode == ModeJSON {
		model.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &legacy.Content{Parts: []legacy.Part{legacy.Text(req.SystemPrompt)}}
	}

	var parts []legacy.Part
	if req.Document != nil {
		parts = append(parts, legacy.Blob{MIMEType: req.Document.MIMEType, Data: req.Document.Data})
	}
	parts = append(parts, legacy.Text(req.UserText()))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini-legacy generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini-legacy returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(legacy.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}
