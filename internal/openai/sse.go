package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ChunkFrame builds one chat.completion.chunk object. finishReason is nil for
// intermediate frames and "stop" on the terminal frame.
func ChunkFrame(id, model string, created int64, delta Payload, finishReason any) Payload {
	return Payload{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   model,
		"choices": []Payload{{
			"index":         0,
			"delta":         delta,
			"finish_reason": finishReason,
		}},
	}
}

// WriteSSE writes one data frame in the SSE envelope.
func WriteSSE(w io.Writer, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// WriteSSEDone writes the literal stream-termination marker.
func WriteSSEDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}

// SetSSEHeaders prepares a response for server-sent events.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
