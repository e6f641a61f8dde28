package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	KindGemini = "gemini"
	KindOpenAI = "openai"
)

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// CallConfig holds the optional sampling parameters forwarded to the model.
// Fields a provider does not support are ignored by that provider.
type CallConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	TopK            *int32   `json:"topK,omitempty"`
	MaxOutputTokens *int32   `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// Validate checks the documented ranges. A nil field is always valid.
func (c CallConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Temperature, validation.Min(float32(0)), validation.Max(float32(2))),
		validation.Field(&c.TopP, validation.Min(float32(0)), validation.Max(float32(1))),
		validation.Field(&c.TopK, validation.NilOrNotEmpty, validation.Min(int32(1))),
		validation.Field(&c.MaxOutputTokens, validation.NilOrNotEmpty, validation.Min(int32(1)), validation.Max(int32(8192))),
		validation.Field(&c.StopSequences, validation.Length(0, 5), validation.Each(validation.Required)),
	)
}

// Completer is a text-completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string, cfg *CallConfig) (string, error)
	Name() string
}

// Settings selects and configures a Completer.
type Settings struct {
	Kind       string
	Model      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// New builds the Completer named by settings.Kind.
func New(ctx context.Context, settings Settings) (Completer, error) {
	switch strings.ToLower(settings.Kind) {
	case KindGemini, "":
		return NewGemini(ctx, settings)
	case KindOpenAI:
		return NewOpenAI(settings)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", settings.Kind)
	}
}
