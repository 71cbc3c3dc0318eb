// Package langchain adapts an OpenAI-compatible chat endpoint to classify.Model.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/JakeFAU/hackathon-harvester/internal/classify"
)

// Config selects the endpoint and model.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Model calls a chat-completions endpoint in JSON mode.
type Model struct {
	client llms.Model
}

// New builds a Model. The API key is required.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("langchain: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("langchain: model is required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &Model{client: client}, nil
}

// Generate sends prompt as one human message and returns the first choice.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(prompt)},
	}}
	resp, err := m.client.GenerateContent(ctx, messages,
		llms.WithTemperature(0.0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// classifyError lifts the HTTP status out of a client error so transient
// statuses can be retried.
func classifyError(err error) error {
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return fmt.Errorf("generate content: %w", err)
	}
	code, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return fmt.Errorf("generate content: %w", err)
	}
	return &classify.StatusError{Code: code, Err: err}
}
