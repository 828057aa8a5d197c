package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single conversational message. Order within a request
// is significant: the system message comes first.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured output from the remote model.
type ResponseFormat struct {
	Type   string                 `json:"type"`
	Schema *jsonschema.Definition `json:"schema,omitempty"`
}

// ChatOptions configures a single chat request. It is treated as immutable
// once a request has been issued.
type ChatOptions struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	Stream         bool
	ResponseFormat *ResponseFormat
	Tools          json.RawMessage
	ToolChoice     json.RawMessage
	Transforms     []string

	// OnDelta receives streamed text fragments. Required when Stream is set.
	OnDelta func(delta string)
}

// Price is a per-token price. The catalog encodes prices as decimal strings,
// but plain JSON numbers are accepted too.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*p = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", raw, err)
	}
	*p = Price(v)
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(p), 'f', -1, 64))
}

// Pricing holds prompt and completion prices of a model.
type Pricing struct {
	Prompt     Price `json:"prompt"`
	Completion Price `json:"completion"`
}

// ModelDescriptor describes one entry of the remote model catalog.
type ModelDescriptor struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name,omitempty"`
	ContextLength       int      `json:"context_length"`
	Pricing             Pricing  `json:"pricing"`
	SupportedParameters []string `json:"supported_parameters"`
}

// Supports reports whether the model declares the given capability flag.
func (m ModelDescriptor) Supports(flag string) bool {
	return slices.Contains(m.SupportedParameters, flag)
}

// KeyInfo is the credit/usage metadata returned for an API key.
type KeyInfo struct {
	Label      string   `json:"label"`
	Usage      float64  `json:"usage"`
	Limit      *float64 `json:"limit"`
	IsFreeTier bool     `json:"is_free_tier"`
}
