// Package export turns a finished generation into a BlogPost and writes it
// out as text, markdown, HTML or JSON.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"ai_blog_generator/client"
	"ai_blog_generator/generator"
)

// BlogPost is a generated post with its request metadata.
type BlogPost struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Digest    string   `json:"digest,omitempty"`
	Keywords  []string `json:"keywords"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatMarkdown, FormatHTML, FormatJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

// NewPost 用请求和模型原文组装 BlogPost；请求未给标题时取第一个 Markdown 标题。
func NewPost(req generator.GenerationRequest, markdown string, now time.Time) (BlogPost, error) {
	md := strings.TrimSpace(markdown)
	if md == "" {
		return BlogPost{}, errors.New("model returned empty markdown")
	}
	title := req.Title
	if title == "" {
		title = extractTitle(md)
	}
	keywords := req.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	ts := now.UTC().Format(time.RFC3339)
	return BlogPost{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   md,
		Digest:    digest(md, 120),
		Keywords:  keywords,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

func extractTitle(md string) string {
	m := headingRe.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(strings.Trim(m[1], "*"))
	}
	return ""
}

// digest 取格式化后的首段，超长按字符截断。
func digest(md string, limit int) string {
	paras := client.Paragraphs(client.Format(md))
	for _, p := range paras {
		if p == "" {
			continue
		}
		r := []rune(p)
		if len(r) <= limit {
			return p
		}
		return string(r[:limit])
	}
	return ""
}

// Write renders post to w in the given format.
func Write(w io.Writer, post BlogPost, f Format) error {
	switch f {
	case FormatText, "":
		_, err := io.WriteString(w, client.Format(post.Content)+"\n")
		return err
	case FormatMarkdown:
		_, err := io.WriteString(w, post.Content+"\n")
		return err
	case FormatHTML:
		html, err := ToHTML(post.Content)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html)
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(post)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// ToHTML converts the model's markdown with goldmark.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
