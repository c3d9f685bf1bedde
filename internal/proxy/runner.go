package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/openai"
	"github.com/toolgate/toolgate/internal/tools"
)

// ChatBackend posts a chat completion payload and returns the decoded
// response. Satisfied by *Upstream.
type ChatBackend interface {
	Chat(ctx context.Context, path string, headers http.Header, payload openai.Payload) (openai.Payload, error)
}

// Runner drives the multi-round tool-calling loop: execute every tool call
// the model requested, feed the results back, and repeat until the model
// answers in plain text or the round cap is reached.
type Runner struct {
	registry    *tools.Registry
	backend     ChatBackend
	maxRounds   int
	callTimeout time.Duration
	log         *slog.Logger
}

// RunResult reports what the loop did alongside the final response.
type RunResult struct {
	Response   openai.Payload
	Rounds     int
	TotalCalls int
}

func NewRunner(registry *tools.Registry, backend ChatBackend, cfg config.ToolsConfig, log *slog.Logger) *Runner {
	return &Runner{
		registry:    registry,
		backend:     backend,
		maxRounds:   cfg.MaxRounds,
		callTimeout: cfg.CallTimeout,
		log:         log.With("component", "runner"),
	}
}

// Run resolves tool calls starting from response, which the backend produced
// for request. It returns the last well-formed backend response. Tool
// failures never abort the loop: they are reported back to the model as tool
// result text. Rounds is zero when response requests no tool calls.
func (r *Runner) Run(ctx context.Context, path string, headers http.Header, request, response openai.Payload) (RunResult, error) {
	result := RunResult{Response: response}
	baseMessages := openai.Messages(request)
	var followUp []openai.Payload

	for result.Rounds < r.maxRounds {
		msg, ok := openai.FirstChoiceMessage(result.Response)
		if !ok {
			break
		}
		calls := functionCalls(openai.MessageToolCalls(msg))
		if len(calls) == 0 {
			break
		}
		result.Rounds++
		result.TotalCalls += len(calls)

		followUp = append(followUp, msg)
		for _, call := range calls {
			content := r.execute(ctx, call)
			followUp = append(followUp, openai.ToolResultMessage(call.ID, content))
		}

		next := openai.ClonePayload(request)
		messages := make([]any, 0, len(baseMessages)+len(followUp))
		messages = append(messages, baseMessages...)
		for _, m := range followUp {
			messages = append(messages, m)
		}
		next["messages"] = messages

		resp, err := r.backend.Chat(ctx, path, headers, next)
		if err != nil {
			var backendErr *BackendError
			if errors.As(err, &backendErr) || errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamUnreachable) {
				return result, err
			}
			// Malformed follow-up body: keep the last good response.
			r.log.Warn("follow-up response malformed, returning previous", "error", err, "round", result.Rounds)
			return result, nil
		}
		result.Response = resp
	}

	return result, nil
}

// functionCalls keeps only the entries of type "function"; nothing else is
// executable.
func functionCalls(calls []openai.ToolCall) []openai.ToolCall {
	out := calls[:0]
	for _, call := range calls {
		if call.Type == "function" {
			out = append(out, call)
		}
	}
	return out
}

// execute runs one tool call under the per-call timeout and always returns
// text for the model, converting every failure into a readable message.
func (r *Runner) execute(ctx context.Context, call openai.ToolCall) string {
	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		r.log.Warn("invalid tool arguments", "tool", call.Function.Name, "error", err)
		return fmt.Sprintf("Error executing tool %s: invalid arguments: %v", call.Function.Name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	out, err := r.registry.Invoke(callCtx, call.Function.Name, args)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			r.log.Warn("tool call timed out", "tool", call.Function.Name, "timeout", r.callTimeout)
			return fmt.Sprintf("Tool %s execution timed out after %s", call.Function.Name, r.callTimeout)
		}
		r.log.Warn("tool call failed", "tool", call.Function.Name, "error", err)
		return fmt.Sprintf("Error executing tool %s: %v", call.Function.Name, err)
	}

	r.log.Debug("tool call completed", "tool", call.Function.Name, "duration", time.Since(start))
	return out
}

func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
