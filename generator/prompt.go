package generator

import "strings"

const (
	promptBase    = "Write a detailed blog post in approximately 500 words"
	promptClosing = " Keep the content concise and focused within the 500-word limit."
)

// BuildPrompt 拼接单条用户指令：基础要求、标题、关键词、视角说明、字数提醒。
// 标题和关键词原样拼入，不做任何转义。
func BuildPrompt(title string, keywords []string, p Perspective) string {
	var sb strings.Builder
	sb.WriteString(promptBase)
	if title != "" {
		sb.WriteString(" about ")
		sb.WriteString(title)
	}
	if len(keywords) > 0 {
		sb.WriteString(" covering the following topics: ")
		sb.WriteString(strings.Join(keywords, ", "))
	}
	sb.WriteString(". ")
	sb.WriteString(p.Instruction())
	sb.WriteString(promptClosing)
	return sb.String()
}

// PromptFor resolves the request perspective and builds the prompt.
func PromptFor(req GenerationRequest) (string, error) {
	p, err := ParsePerspective(req.Perspective)
	if err != nil {
		return "", err
	}
	return BuildPrompt(req.Title, req.Keywords, p), nil
}
