// Package providers adapts the language-model SDKs behind a single Completer
// interface. The orchestrator only selects a tier per persona; model choice,
// auth, and transport live here.
package providers

import (
	"context"
)

// Tier selects the capability class for one completion. The sceptic and
// synthesiser run elevated because their output drives escalation decisions
// and is parsed for structured dissent.
type Tier string

const (
	TierStandard Tier = "standard"
	TierElevated Tier = "elevated"
)

// Role marks a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	SystemPrompt string    `json:"system_prompt"`
	Messages     []Message `json:"messages"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Tier         Tier      `json:"tier,omitempty"`
}

// Response is the model's reply.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Completer is the language-model collaborator the ensemble consumes.
// Implementations embed their own timeout and retry policy; errors propagate
// to the caller unretried by the core.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Validator is implemented by providers whose configuration can be checked
// ahead of the first call.
type Validator interface {
	ValidateConfig() error
}
