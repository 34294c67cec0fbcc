package generator

import (
	"context"
	"errors"
	"io"
)

// Agent 负责把一次生成请求变成上游的流式响应。
type Agent struct {
	llm LLMClient
}

func NewAgent(llm LLMClient) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm}, nil
}

// Open checks the credential, builds the prompt and opens the upstream
// stream, in that order. Nothing is sent when the credential is missing or
// the perspective is unknown.
func (a *Agent) Open(ctx context.Context, req GenerationRequest) (io.ReadCloser, error) {
	if !a.llm.Configured() {
		return nil, ErrNotConfigured
	}
	prompt, err := PromptFor(req)
	if err != nil {
		return nil, err
	}
	return a.llm.Stream(ctx, prompt)
}
