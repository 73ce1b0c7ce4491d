package generator

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openAIBackend serves text in JSON mode and images through the images API.
type openAIBackend struct {
	client     *openai.Client
	textModel  string
	imageModel string
}

func newOpenAI(apiKey, baseURL, textModel, imageModel string) *openAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIBackend{
		client:     openai.NewClientWithConfig(cfg),
		textModel:  textModel,
		imageModel: imageModel,
	}
}

func (o *openAIBackend) model() string { return o.textModel }

func (o *openAIBackend) complete(ctx context.Context, req completion) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.textModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *openAIBackend) image(ctx context.Context, prompt, size string) (string, string, error) {
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.imageModel,
		Size:           size,
		Quality:        openai.CreateImageQualityStandard,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("openai image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", "", fmt.Errorf("%w: no image returned", ErrMalformedResponse)
	}
	return resp.Data[0].URL, resp.Data[0].RevisedPrompt, nil
}
