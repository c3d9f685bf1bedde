package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/openai"
)

// Synthesizer turns a completed batch response into a synthetic SSE stream
// so clients that requested streaming still get chunked deltas.
type Synthesizer struct {
	chunkSize int
	delay     time.Duration
}

func NewSynthesizer(cfg config.HybridConfig) *Synthesizer {
	return &Synthesizer{
		chunkSize: cfg.ChunkSize,
		delay:     cfg.ChunkDelay,
	}
}

// Stream writes resp to w as an SSE chat completion stream: a role frame,
// the answer content in fixed-size chunks, a stop frame, then [DONE].
// Chunking is by character so multi-byte runes are never split. ctx
// cancellation stops the stream mid-way.
func (s *Synthesizer) Stream(ctx context.Context, w http.ResponseWriter, resp openai.Payload) error {
	flusher, _ := w.(http.Flusher)

	id := openai.StringField(resp, "id")
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	model := openai.StringField(resp, "model")
	created := time.Now().Unix()
	if v, ok := resp["created"].(float64); ok {
		created = int64(v)
	}

	content := ""
	finish := "stop"
	if msg, ok := openai.FirstChoiceMessage(resp); ok {
		content = openai.MessageContent(msg)
	}
	if choices, ok := resp["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
				finish = fr
			}
		}
	}

	emit := func(delta openai.Payload, finishReason any) error {
		frame := openai.ChunkFrame(id, model, created, delta, finishReason)
		if err := openai.WriteSSE(w, frame); err != nil {
			return fmt.Errorf("write stream chunk: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := emit(openai.Payload{"role": "assistant"}, nil); err != nil {
		return err
	}

	runes := []rune(content)
	for i := 0; i < len(runes); i += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if err := emit(openai.Payload{"content": string(runes[i:end])}, nil); err != nil {
			return err
		}
		if s.delay > 0 && end < len(runes) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}

	if err := emit(openai.Payload{}, finish); err != nil {
		return err
	}
	if err := openai.WriteSSEDone(w); err != nil {
		return fmt.Errorf("write stream done: %w", err)
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}
