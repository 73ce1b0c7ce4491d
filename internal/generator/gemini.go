package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiBackend serves text only; images stay on OpenAI.
type geminiBackend struct {
	client    *genai.Client
	modelName string
}

func newGemini(ctx context.Context, apiKey, modelName string) (*geminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("genai client init failed: %w", err)
	}
	return &geminiBackend{client: client, modelName: modelName}, nil
}

func (g *geminiBackend) model() string { return g.modelName }

func (g *geminiBackend) Close() error { return g.client.Close() }

func (g *geminiBackend) complete(ctx context.Context, req completion) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(req.Temperature)

	resp, err := m.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates returned", ErrMalformedResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}
