// Package llm defines the provider-neutral completion contract shared by the
// gate, the provider backends and the relay.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Role tags a message with its speaker.
type Role string

// Roles understood by every backend.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Request defaults, used when a surface does not set its own budget.
const (
	DefaultMaxTokens = 1500
	TemperatureChat  = 0.7
	TemperatureCode  = 0.2
	MaxTemperature   = 2.0
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion call. Messages are in conversation order.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Usage is the provider-reported token accounting, zero when unknown.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the answer to a Request.
type Response struct {
	Content    string
	StopReason string
	Usage      Usage
}

// Empty reports whether the answer has no visible text.
func (r Response) Empty() bool {
	return strings.TrimSpace(r.Content) == ""
}

// Client is a model backend. Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	ModelName() string
}

// NewRequest returns a request over messages with the chat defaults.
func NewRequest(messages []Message) Request {
	return Request{Messages: messages, MaxTokens: DefaultMaxTokens, Temperature: TemperatureChat}
}

// SystemMessage, UserMessage and AssistantMessage build a Message for their role.
func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Request validation errors.
var (
	ErrNoMessages         = errors.New("request has no messages")
	ErrBadTokenBudget     = errors.New("max tokens must be positive")
	ErrBadTemperatureSpan = errors.New("temperature must be within 0..2")
)

// Validate rejects requests no backend would accept.
func (r Request) Validate() error {
	switch {
	case len(r.Messages) == 0:
		return ErrNoMessages
	case r.MaxTokens <= 0:
		return ErrBadTokenBudget
	case r.Temperature < 0 || r.Temperature > MaxTemperature:
		return ErrBadTemperatureSpan
	}
	return nil
}

// SplitSystem pulls every system message out of messages and joins them with a
// blank line. Backends that carry the system prompt outside the turn list use it.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
		} else {
			turns = append(turns, m)
		}
	}
	return strings.Join(system, "\n\n"), turns
}
