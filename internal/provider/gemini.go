package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini completes prompts with Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, settings Settings) (*Gemini, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := settings.Model
	if model == "" {
		model = defaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:     settings.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: settings.HTTPClient,
	}
	if settings.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: settings.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string {
	return "gemini:" + g.model
}

func (g *Gemini) Complete(ctx context.Context, prompt string, cfg *CallConfig) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, geminiConfig(cfg))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason)
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}

	return b.String(), nil
}

func geminiConfig(cfg *CallConfig) *genai.GenerateContentConfig {
	if cfg == nil {
		return nil
	}

	out := &genai.GenerateContentConfig{
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		StopSequences: cfg.StopSequences,
	}
	if cfg.TopK != nil {
		topK := float32(*cfg.TopK)
		out.TopK = &topK
	}
	if cfg.MaxOutputTokens != nil {
		out.MaxOutputTokens = *cfg.MaxOutputTokens
	}

	return out
}
