// Package llm wraps the OpenAI-compatible chat provider behind a small
// interface so the pipeline can be tested with fakes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groundline/groundline/pkg/config"
)

// Kind selects which provider model handles a request.
type Kind string

const (
	// KindChat is the default workhorse model.
	KindChat Kind = "chat"
	// KindAdvanced is the larger model used for answer synthesis and
	// prompt analysis.
	KindAdvanced Kind = "advanced"
	// KindFast is the cheap model used for claim verification.
	KindFast Kind = "fast"
	// KindVision describes images for the multimodal chat adapter.
	KindVision Kind = "vision"
)

// ErrEmptyResponse is returned when the provider answers with no
// choices or empty content.
var ErrEmptyResponse = errors.New("llm returned empty response")

// Request is one chat completion call.
type Request struct {
	Kind        Kind
	System      string
	User        string
	MaxTokens   int
	Temperature float32
	// JSONMode asks the provider for a JSON object response.
	JSONMode bool
}

// Client is the chat/transcription/vision surface the pipeline uses.
type Client interface {
	// Complete runs a chat completion and returns the assistant text.
	Complete(ctx context.Context, req Request) (string, error)
	// Transcribe converts audio bytes into text via the whisper model.
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
	// DescribeImage captions an image (as a data URL) for multimodal context.
	DescribeImage(ctx context.Context, imageDataURL string) (string, error)
}

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	api    *openai.Client
	cfg    config.LLMConfig
	logger *slog.Logger
}

// NewOpenAIClient builds the provider client from configuration. The
// API key is read from the environment variable named in the config.
func NewOpenAIClient(cfg config.LLMConfig) (*OpenAIClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key: set %s", cfg.APIKeyEnv)
	}
	apiCfg := openai.DefaultConfig(key)
	apiCfg.BaseURL = cfg.BaseURL

	return &OpenAIClient{
		api:    openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: slog.With("component", "llm"),
	}, nil
}

func (c *OpenAIClient) model(kind Kind) string {
	switch kind {
	case KindAdvanced:
		return c.cfg.AdvancedModel
	case KindFast:
		return c.cfg.FastModel
	case KindVision:
		return c.cfg.VisionModel
	default:
		return c.cfg.ChatModel
	}
}

// Complete runs a chat completion and returns the assistant text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	ccr := openai.ChatCompletionRequest{
		Model:       c.model(req.Kind),
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		ccr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe converts audio to text using the whisper model.
func (c *OpenAIClient) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.WhisperModel,
		FilePath: filename,
		Reader:   strings.NewReader(string(audio)),
	})
	if err != nil {
		return "", classifyError(err)
	}
	return resp.Text, nil
}

// DescribeImage captions an image given as a data URL.
func (c *OpenAIClient) DescribeImage(ctx context.Context, imageDataURL string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.VisionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Describe this image concisely, focusing on text and factual content."},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageDataURL}},
			},
		}},
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyError keeps provider status detail in the chain while
// producing a log-friendly message.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("llm provider error (status %d, type %s): %w", apiErr.HTTPStatusCode, apiErr.Type, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("llm request error (status %d): %w", reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("llm call failed: %w", err)
}
