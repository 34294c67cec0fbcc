package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient on the official openai-go SDK. It works with
// any OpenAI-compatible chat completions endpoint; DeepSeek is the default.
//
// The SDK only transports the request. The response body is handed back
// undecoded so the relay can apply its own frame rules.
type OpenAILLM struct {
	Model       string
	Temperature float64
	MaxTokens   int64

	configured bool
	client     openai.Client
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	o := &OpenAILLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		configured:  cfg.APIKey != "",
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	o.client = openai.NewClient(opts...)
	return o, nil
}

func (o *OpenAILLM) Configured() bool {
	return o.configured
}

func (o *OpenAILLM) Stream(ctx context.Context, prompt string) (io.ReadCloser, error) {
	if !o.configured {
		return nil, ErrNotConfigured
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(o.Temperature),
		MaxTokens:   openai.Int(o.MaxTokens),
	}

	var raw *http.Response
	err := o.client.Post(ctx, "chat/completions", params, &raw,
		option.WithJSONSet("stream", true),
		option.WithHeader("Accept", "text/event-stream"),
	)
	if err != nil {
		if raw != nil && raw.StatusCode >= http.StatusBadRequest {
			return nil, &UpstreamError{StatusCode: raw.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		raw.Body.Close()
		return nil, &UpstreamError{StatusCode: raw.StatusCode}
	}
	return raw.Body, nil
}
