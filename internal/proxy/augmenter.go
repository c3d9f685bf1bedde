package proxy

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/openai"
	"github.com/toolgate/toolgate/internal/tools"
)

const toolGuidance = "You have access to the following tools. Use them when they help answer the user's request. Preserve the formatting of tool output exactly as received, including markdown; do not summarize or reformat it."

// Augmenter injects registry tools and guidance into chat completion
// requests before they reach the backend.
type Augmenter struct {
	registry *tools.Registry
	priority string
	log      *slog.Logger
}

func NewAugmenter(registry *tools.Registry, cfg config.ToolsConfig, log *slog.Logger) *Augmenter {
	return &Augmenter{
		registry: registry,
		priority: cfg.Priority,
		log:      log.With("component", "augmenter"),
	}
}

// Augment returns a copy of payload with registry tools injected and the
// system message extended. The input payload is not modified.
//
// Priority "proxy" replaces any client-supplied tool list with the registry's.
// Priority "client" defers entirely: when the client sent its own tools the
// payload is returned unchanged, registry tools included only when it did not.
func (a *Augmenter) Augment(payload openai.Payload) openai.Payload {
	proxyTools := a.registry.FormatForBackend()
	if len(proxyTools) == 0 {
		return payload
	}
	if a.priority == config.PriorityClient && len(clientToolList(payload)) > 0 {
		return payload
	}

	out := openai.ClonePayload(payload)
	out["tools"] = proxyTools
	if _, ok := out["tool_choice"]; !ok {
		out["tool_choice"] = "auto"
	}
	out["messages"] = a.augmentMessages(openai.Messages(payload))

	a.log.Debug("augmented request", "tools", len(proxyTools))
	return out
}

// augmentMessages extends the first system message with tool guidance, or
// prepends a fresh one when the conversation has none. Guidance is only
// added once even if the request passes through the augmenter again.
func (a *Augmenter) augmentMessages(messages []any) []any {
	guidance := a.guidanceText()

	out := make([]any, 0, len(messages)+1)
	extended := false
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok || extended || openai.StringField(msg, "role") != "system" {
			out = append(out, raw)
			continue
		}
		content := openai.StringField(msg, "content")
		if strings.Contains(content, toolGuidance) {
			out = append(out, msg)
		} else {
			m := openai.ClonePayload(msg)
			m["content"] = content + "\n\n" + guidance
			out = append(out, m)
		}
		extended = true
	}
	if !extended {
		sys := openai.Payload{"role": "system", "content": guidance}
		out = append([]any{sys}, out...)
	}
	return out
}

func (a *Augmenter) guidanceText() string {
	var b strings.Builder
	b.WriteString(toolGuidance)
	b.WriteString("\n\nAvailable tools:\n")
	for _, d := range a.registry.List() {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func clientToolList(payload openai.Payload) []any {
	raw, _ := payload["tools"].([]any)
	return raw
}
