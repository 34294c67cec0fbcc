package generator

import (
	"context"
	"io"
	"strings"

	"github.com/tidwall/sjson"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 它把一篇固定的 Markdown 稿件按词切成 data 帧返回。
type MockLLM struct{}

func (MockLLM) Configured() bool { return true }

func (m MockLLM) Stream(_ context.Context, prompt string) (io.ReadCloser, error) {
	var md strings.Builder
	md.WriteString("### A Generated Post\n\n")
	md.WriteString("**This is placeholder output from the mock provider.**\n\n")
	md.WriteString("It was produced for the following instruction:\n\n")
	md.WriteString(prompt)
	md.WriteString("\n\n---\n\nSwitch the provider to deepseek for real content.\n")

	var sb strings.Builder
	sb.WriteString(": mock stream\n\n")
	for _, tok := range splitKeepSpace(md.String()) {
		frame, err := sjson.Set(`{"object":"chat.completion.chunk"}`, "choices.0.delta.content", tok)
		if err != nil {
			return nil, err
		}
		sb.WriteString("data: ")
		sb.WriteString(frame)
		sb.WriteString("\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(sb.String())), nil
}

// splitKeepSpace cuts s after every space or newline so the pieces
// concatenate back to s.
func splitKeepSpace(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == ' ' || r == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
