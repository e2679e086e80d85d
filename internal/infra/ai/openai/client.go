package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/infra/ai/prompt"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o-mini"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client is the vision classifier. It is built once at startup and shared.
type Client struct {
	*openai.Client
	Model string
}

// NewClient fails when no API key is configured so the process never starts
// without a usable model credential.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: model API key is not set", detection.ErrConfiguration)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{Client: openai.NewClientWithConfig(oc), Model: model}, nil
}

// Classify issues exactly one chat completion carrying the inline image and
// returns the raw reply text.
func (c *Client) Classify(ctx context.Context, in detection.ClassificationRequest) (string, error) {
	p, err := buildPrompt(in)
	if err != nil {
		return "", err
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", in.MIMEType, base64.StdEncoding.EncodeToString(in.Image))
	req := openai.ChatCompletionRequest{
		Model: c.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   p.SchemaName,
				Schema: &p.Schema,
			},
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURI, Detail: openai.ImageURLDetailAuto},
					},
					{Type: openai.ChatMessagePartTypeText, Text: p.Task},
				},
			},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.Model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty reply from model", detection.ErrMalformedModelOutput)
	}
	return resp.Choices[0].Message.Content, nil
}

func buildPrompt(in detection.ClassificationRequest) (prompt.Prompt, error) {
	if in.Mode == detection.ModeGeneral {
		return prompt.BuildGeneral(), nil
	}
	return prompt.BuildBiosecurity(in.Species)
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
