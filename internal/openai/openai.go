package openai

import (
	"encoding/json"
)

// Chat completion endpoint aliases accepted by the proxy. Clients use both
// forms depending on whether their base URL already includes /v1.
const (
	ChatCompletionsPath   = "/v1/chat/completions"
	ChatCompletionsPathV0 = "/chat/completions"
)

// IsChatCompletionsPath reports whether path is one of the accepted
// chat-completion endpoint aliases. Exact match only.
func IsChatCompletionsPath(path string) bool {
	return path == ChatCompletionsPath || path == ChatCompletionsPathV0
}

// ToolCall is a function-call request produced by the backend inside an
// assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its raw JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Payload is a parsed request or response body. The proxy must forward fields
// it does not understand untouched, so bodies stay as generic JSON objects and
// the helpers below provide typed views over the parts the proxy manipulates.
type Payload = map[string]any

// ClonePayload returns a shallow copy of p. Top-level keys can be replaced on
// the copy without affecting the original; nested values are shared.
func ClonePayload(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// IsStreaming reports whether the payload requests a streaming response.
func IsStreaming(p Payload) bool {
	v, ok := p["stream"].(bool)
	return ok && v
}

// Messages returns the payload's messages list, or nil.
func Messages(p Payload) []any {
	msgs, _ := p["messages"].([]any)
	return msgs
}

// StringField returns the string value of a top-level field, or "".
func StringField(p Payload, key string) string {
	s, _ := p[key].(string)
	return s
}

// FirstChoiceMessage returns the message object of the first choice in a chat
// completion response, or false when the response has no choices or the first
// choice carries no message.
func FirstChoiceMessage(resp Payload) (Payload, bool) {
	choices, _ := resp["choices"].([]any)
	if len(choices) == 0 {
		return nil, false
	}
	first, _ := choices[0].(map[string]any)
	if first == nil {
		return nil, false
	}
	msg, _ := first["message"].(map[string]any)
	if msg == nil {
		return nil, false
	}
	return msg, true
}

// MessageToolCalls extracts the tool calls from an assistant message object.
// The message is generic JSON, so the list is round-tripped through the typed
// ToolCall struct once here rather than shape-sniffed at every use site.
func MessageToolCalls(msg Payload) []ToolCall {
	raw, ok := msg["tool_calls"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil
	}
	return calls
}

// MessageContent returns the textual content of a message object, or "" when
// content is absent or not a plain string.
func MessageContent(msg Payload) string {
	s, _ := msg["content"].(string)
	return s
}

// ToolResultMessage builds the tool-role message that answers a tool call.
func ToolResultMessage(callID, content string) Payload {
	return Payload{
		"role":         "tool",
		"tool_call_id": callID,
		"content":      content,
	}
}
