package synth

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 1500
)

// llmProvider adapts a langchaingo model to the Provider interface.
type llmProvider struct {
	name  string
	model llms.Model
}

// NewOpenAI creates an OpenAI-backed provider.
func NewOpenAI(apiKey, modelName string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key required")
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	model, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return &llmProvider{name: "openai", model: model}, nil
}

// NewGoogleAI creates a Google Generative AI backed provider.
func NewGoogleAI(ctx context.Context, apiKey, modelName string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("googleai: API key required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	model, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create googleai model: %w", err)
	}
	return &llmProvider{name: "googleai", model: model}, nil
}

func (p *llmProvider) Name() string { return p.name }

func (p *llmProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := p.model.GenerateContent(ctx, messages,
		llms.WithTemperature(defaultTemperature),
		llms.WithMaxTokens(defaultMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Content, nil
}
