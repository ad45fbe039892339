// Package openaicompat provides a fallback Translator backed by any
// OpenAI-compatible chat completion endpoint. Pointing it at a local server
// (llama.cpp, ollama) keeps the fallback path working without internet
// connectivity.
package openaicompat

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Translator translates text through a chat completion model.
type Translator struct {
	client *openai.Client
	model  string
}

// Config configures the translator.
type Config struct {
	// BaseURL is the endpoint, e.g. "http://127.0.0.1:11434/v1".
	// Required for local use; empty falls back to the OpenAI default.
	BaseURL string

	// APIKey authenticates against the endpoint. Local servers typically
	// accept any value.
	APIKey string

	// Model is the chat model name. Required.
	Model string
}

// client builds the SDK client for the configured endpoint.
func (cfg Config) client() (*openai.Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openaicompat: missing model")
	}
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &client, nil
}

// New creates a Translator.
func New(cfg Config) (*Translator, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	return &Translator{client: client, model: cfg.Model}, nil
}

// Translate renders text from source into target. The model is instructed to
// return only the translation.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: t.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(
				"Translate the user's text from %s to %s. Reply with the translation only.",
				source, target)),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openaicompat: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openaicompat: empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
