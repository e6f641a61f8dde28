package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI completes prompts with any OpenAI-compatible chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(settings Settings) (*OpenAI, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := settings.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	cfg := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}
	if settings.HTTPClient != nil {
		cfg.HTTPClient = settings.HTTPClient
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (o *OpenAI) Name() string {
	return "openai:" + o.model
}

func (o *OpenAI) Complete(ctx context.Context, prompt string, cfg *CallConfig) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	applyOpenAIConfig(&req, cfg)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// TopK has no OpenAI equivalent and is dropped.
func applyOpenAIConfig(req *openai.ChatCompletionRequest, cfg *CallConfig) {
	if cfg == nil {
		return
	}
	if cfg.Temperature != nil {
		req.Temperature = *cfg.Temperature
	}
	if cfg.TopP != nil {
		req.TopP = *cfg.TopP
	}
	if cfg.MaxOutputTokens != nil {
		req.MaxTokens = int(*cfg.MaxOutputTokens)
	}
	if len(cfg.StopSequences) > 0 {
		req.Stop = cfg.StopSequences
	}
}
