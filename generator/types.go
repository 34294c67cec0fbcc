package generator

import (
	"errors"
	"fmt"
)

// Perspective 选择文章的写作视角（固定五种）。
type Perspective string

const (
	SoftwareEngineer     Perspective = "software-engineer"
	Student              Perspective = "student"
	Teacher              Perspective = "teacher"
	BusinessProfessional Perspective = "business-professional"
	CasualBlogger        Perspective = "casual-blogger"
)

// DefaultPerspective is used when the request leaves perspective empty.
const DefaultPerspective = CasualBlogger

// ErrUnknownPerspective is returned for a perspective outside the fixed set.
var ErrUnknownPerspective = errors.New("unknown perspective")

// Perspectives lists the fixed set in display order.
var Perspectives = []Perspective{
	SoftwareEngineer,
	Student,
	Teacher,
	BusinessProfessional,
	CasualBlogger,
}

// ParsePerspective 空值回落到默认视角，其余必须在固定集合内。
func ParsePerspective(s string) (Perspective, error) {
	if s == "" {
		return DefaultPerspective, nil
	}
	p := Perspective(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPerspective, s)
	}
	return p, nil
}

func (p Perspective) Valid() bool {
	switch p {
	case SoftwareEngineer, Student, Teacher, BusinessProfessional, CasualBlogger:
		return true
	}
	return false
}

// Label returns the human readable name shown in the selector.
func (p Perspective) Label() string {
	switch p {
	case SoftwareEngineer:
		return "Software Engineer"
	case Student:
		return "Student"
	case Teacher:
		return "Teacher"
	case BusinessProfessional:
		return "Business Professional"
	case CasualBlogger:
		return "Casual Blogger"
	}
	return string(p)
}

// Instruction returns the fixed prompt clause for p. Callers resolve p with
// ParsePerspective first; any other value is a programming error.
func (p Perspective) Instruction() string {
	switch p {
	case SoftwareEngineer:
		return "Write from the perspective of an experienced software engineer, using technical terminology and practical development insights."
	case Student:
		return "Write from a student's perspective, focusing on learning experiences and relatable explanations."
	case Teacher:
		return "Write as an educator, emphasizing clear explanations and educational value."
	case BusinessProfessional:
		return "Write from a business professional's viewpoint, focusing on practical applications and business value."
	case CasualBlogger:
		return "Write in a casual, conversational tone, making the content accessible to a general audience."
	}
	panic(fmt.Sprintf("generator: no instruction for perspective %q", string(p)))
}

// GenerationRequest 是 /api/generate 的请求体。Perspective 保留原始字符串，
// 由 ParsePerspective 校验。
type GenerationRequest struct {
	Title       string   `json:"title,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Perspective string   `json:"perspective,omitempty"`
}

// GenerateBlogResponse mirrors the non-streaming response shape. The relay
// streams raw text instead, so nothing in the server fills it.
type GenerateBlogResponse struct {
	Content string `json:"content"`
}
