package proxy

import (
	"log/slog"

	"github.com/toolgate/toolgate/internal/openai"
)

// Hook is one response finalization step. Hooks are additive: they may set
// fields on the response but must leave existing fields alone.
type Hook struct {
	Name  string
	Match func(model string) bool
	Apply func(resp openai.Payload, stats RunResult)
}

// Finalizer applies the hook table to batch responses before they are
// returned to the client. The table is fixed at construction.
type Finalizer struct {
	enabled bool
	hooks   []Hook
	log     *slog.Logger
}

func NewFinalizer(enabled bool, log *slog.Logger) *Finalizer {
	return &Finalizer{
		enabled: enabled,
		hooks:   defaultHooks(),
		log:     log.With("component", "finalizer"),
	}
}

// Finalize returns the response with every matching hook applied. The input
// is not modified. When finalization is disabled the response is returned
// unchanged.
func (f *Finalizer) Finalize(resp openai.Payload, stats RunResult) openai.Payload {
	if !f.enabled || len(f.hooks) == 0 {
		return resp
	}
	model := openai.StringField(resp, "model")
	out := openai.ClonePayload(resp)
	for _, h := range f.hooks {
		if h.Match != nil && !h.Match(model) {
			continue
		}
		h.Apply(out, stats)
		f.log.Debug("applied response hook", "hook", h.Name, "model", model)
	}
	return out
}

func defaultHooks() []Hook {
	return []Hook{
		{
			Name: "tool-usage",
			Apply: func(resp openai.Payload, stats RunResult) {
				if stats.Rounds == 0 {
					return
				}
				if _, exists := resp["toolgate"]; exists {
					return
				}
				resp["toolgate"] = map[string]any{
					"tool_rounds": stats.Rounds,
					"tool_calls":  stats.TotalCalls,
				}
			},
		},
	}
}
