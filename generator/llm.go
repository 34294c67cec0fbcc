package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// 上游默认参数（DeepSeek 的 OpenAI 兼容接口）。
const (
	DefaultProvider    = "deepseek"
	DefaultModel       = "deepseek-chat"
	DefaultBaseURL     = "https://api.deepseek.com/v1/"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// ErrNotConfigured is returned before any network call when the upstream
// credential is missing.
var ErrNotConfigured = errors.New("llm api key is not configured")

// LLMClient 抽象流式大模型客户端，便于替换/Mock。
type LLMClient interface {
	// Stream opens a streamed chat completion for prompt and returns the raw
	// event-stream body. The caller must close it.
	Stream(ctx context.Context, prompt string) (io.ReadCloser, error)
	// Configured reports whether the client holds a credential.
	Configured() bool
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int64
	HTTPClient  *http.Client
}

// UpstreamError reports a completion request the upstream refused.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewLLM picks the client implementation for settings.Provider.
func NewLLM(settings LLMSettings) (LLMClient, error) {
	switch settings.Provider {
	case "", DefaultProvider, "openai":
		return NewOpenAILLMFromConfig(&settings)
	case "mock":
		return MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", settings.Provider)
	}
}
