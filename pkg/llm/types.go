package llm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is a single chat message in the conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request is the chat-completion request body. Exactly one of MaxTokens and
// MaxCompletionTokens is set per request; which one depends on the detected
// token field style of the endpoint.
type Request struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	MaxTokens           *int      `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
}

// Response is the chat-completion response body.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token consumption. Not every endpoint sends it; a zero value
// means the endpoint reported nothing.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the text of the first choice, or "" when there is none.
func (r *Response) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

func decodeResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	return &resp, nil
}

// TokenFieldStyle selects which JSON field carries the output-length limit.
type TokenFieldStyle int

const (
	// TokenFieldModern emits max_completion_tokens (current OpenAI standard).
	TokenFieldModern TokenFieldStyle = iota
	// TokenFieldLegacy emits max_tokens (older dialects, many proxies).
	TokenFieldLegacy
)

// FieldName returns the JSON field name this style emits.
func (s TokenFieldStyle) FieldName() string {
	if s == TokenFieldLegacy {
		return "max_tokens"
	}
	return "max_completion_tokens"
}

func (s TokenFieldStyle) String() string {
	if s == TokenFieldLegacy {
		return "legacy"
	}
	return "modern"
}

// MarshalJSON encodes the style as "modern" or "legacy" so persisted shapes
// stay readable in the config file.
func (s TokenFieldStyle) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TokenFieldStyle) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "legacy":
		*s = TokenFieldLegacy
	case "modern":
		*s = TokenFieldModern
	default:
		return fmt.Errorf("unknown token field style %q", v)
	}
	return nil
}

// DetectedParameters is a request shape that has been proven to work against
// an endpoint and model: at least one real request succeeded with it.
type DetectedParameters struct {
	TokenFieldStyle TokenFieldStyle `json:"token_field"`
	Temperature     float64         `json:"temperature"`
	LastVerifiedAt  time.Time       `json:"last_verified_at"`
}

// NewRequest builds a request body using this shape.
func (p DetectedParameters) NewRequest(model string, messages []Message, maxTokens int) Request {
	req := Request{
		Model:    model,
		Messages: messages,
	}
	temp := p.Temperature
	req.Temperature = &temp
	limit := maxTokens
	if p.TokenFieldStyle == TokenFieldLegacy {
		req.MaxTokens = &limit
	} else {
		req.MaxCompletionTokens = &limit
	}
	return req
}
