package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"plan-agent/pkg/logger"
)

// Config holds the settings for the OpenAI-compatible client. BaseURL points
// the client at any OpenAI-compatible endpoint (Ollama, vLLM, proxies).
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// OpenAIClient implements Client on top of langchaingo's OpenAI binding.
type OpenAIClient struct {
	model       llms.Model
	temperature float64
	log         logger.Logger
}

// NewOpenAI builds the production completion client.
func NewOpenAI(cfg Config, log logger.Logger) (*OpenAIClient, error) {
	opts := []openai.Option{}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "client initialization failed", Err: err}
	}

	log.Infof("LLM client ready - model: %s, base_url: %s", cfg.Model, cfg.BaseURL)
	return &OpenAIClient{
		model:       model,
		temperature: cfg.Temperature,
		log:         log,
	}, nil
}

// Complete sends one prompt and returns the completion text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	var messages []llms.MessageContent
	if opts.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, opts.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{}
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	if temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(temperature))
	}
	if opts.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		classified := classify(ctx, err)
		c.log.Errorf("LLM call failed (%s): %v", classified.Kind, err)
		return "", classified
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", &Error{Kind: KindInvalidResponse, Message: "empty completion"}
	}
	return resp.Choices[0].Content, nil
}

// classify maps vendor errors onto the stable kinds. Rate limiting is
// detected by message inspection because langchaingo flattens HTTP status
// into the error string.
func classify(ctx context.Context, err error) *Error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Message: "completion cancelled", Err: err}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429"):
		return &Error{Kind: KindRateLimited, Message: "rate limited by provider", Err: err}
	case strings.Contains(msg, "unmarshal") || strings.Contains(msg, "decode"):
		return &Error{Kind: KindInvalidResponse, Message: "unreadable provider response", Err: err}
	default:
		return &Error{Kind: KindNetwork, Message: "provider call failed", Err: err}
	}
}
