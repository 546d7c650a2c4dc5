// Package llm wraps an OpenAI-compatible chat completion endpoint for
// structured JSON output.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/models"
)

const (
	completionTimeout  = 120 * time.Second
	defaultTemperature = 0.2
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// JSONRequest is a single structured completion.
type JSONRequest struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// Client issues structured completions.
type Client struct {
	api   openai.Client
	model string
	log   *logrus.Logger
}

// New creates a Client.
func New(cfg Config, log *logrus.Logger) *Client {
	opts := []option.RequestOption{option.WithMaxRetries(2)}

	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{api: openai.NewClient(opts...), model: cfg.Model, log: log}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// CompleteJSON asks for output conforming to req.Schema (strict) and returns
// the decoded JSON document. Free-text answers are searched for an embedded
// JSON object.
func (c *Client) CompleteJSON(ctx context.Context, req JSONRequest) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(defaultTemperature),
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &models.ExternalServiceError{Service: "completion", Op: "chat", Err: err}
	}

	c.log.WithFields(logrus.Fields{
		"model":             c.model,
		"schema":            req.SchemaName,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"duration":          time.Since(start),
	}).Debug("completion finished")

	if len(resp.Choices) == 0 {
		return nil, &models.StructuredOutputParseError{Err: errors.New("completion returned no choices")}
	}

	return ExtractJSON(resp.Choices[0].Message.Content)
}
