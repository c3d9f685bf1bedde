package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/toolgate/toolgate/internal/accounting"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/openai"
)

// Orchestrator ties the proxy pipeline together: augment the request, run
// the tool loop, finalize the response, and deliver it either as JSON or as
// a synthetic stream. Anything it cannot handle is passed through verbatim.
type Orchestrator struct {
	cfg         *config.Config
	upstream    *Upstream
	augmenter   *Augmenter
	runner      *Runner
	finalizer   *Finalizer
	synthesizer *Synthesizer
	store       accounting.Store
	log         *slog.Logger
}

func NewOrchestrator(cfg *config.Config, upstream *Upstream, augmenter *Augmenter, runner *Runner, finalizer *Finalizer, synthesizer *Synthesizer, store accounting.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		upstream:    upstream,
		augmenter:   augmenter,
		runner:      runner,
		finalizer:   finalizer,
		synthesizer: synthesizer,
		store:       store,
		log:         log.With("component", "orchestrator"),
	}
}

// ServeHTTP handles every proxied request. Chat completion POSTs go through
// the tool pipeline; everything else is forwarded untouched.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := uuid.NewString()
	log := o.log.With("request_id", reqID, "method", r.Method, "path", r.URL.Path)

	rec := accounting.Record{
		ID:     reqID,
		Method: r.Method,
		Path:   r.URL.Path,
	}
	defer func() {
		rec.Duration = time.Since(start)
		if err := o.store.Record(rec); err != nil {
			log.Warn("accounting record failed", "error", err)
		}
	}()

	if r.Method != http.MethodPost || !openai.IsChatCompletionsPath(r.URL.Path) {
		rec.Status = o.passthrough(w, r, log)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		rec.Status = http.StatusBadRequest
		openai.WriteError(w, http.StatusBadRequest, openai.ErrTypeInvalidRequest, "failed to read request body")
		return
	}

	var payload openai.Payload
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		// Not JSON we understand. Let the backend decide.
		rec.Status = o.forwardRaw(w, r, body, log)
		return
	}

	rec.Model = openai.StringField(payload, "model")
	streaming := openai.IsStreaming(payload)
	rec.Streaming = streaming
	hybrid := streaming && o.cfg.Hybrid.Enabled
	rec.Hybrid = hybrid

	toolsActive := o.cfg.Tools.Enabled && o.cfg.Modify.Request

	if streaming && !hybrid {
		// Pure streaming passthrough. No augmentation, no tool loop.
		rec.Status = o.forwardRaw(w, r, body, log)
		return
	}

	headers := o.upstream.ForwardHeaders(r.Header)

	request := payload
	if toolsActive {
		request = o.augmenter.Augment(payload)
	}
	if hybrid {
		request = openai.ClonePayload(request)
		delete(request, "stream")
		delete(request, "stream_options")
	}

	response, err := o.upstream.Chat(r.Context(), r.URL.Path, headers, request)
	if err != nil {
		rec.Status = o.writeUpstreamError(w, err, log)
		return
	}

	stats := RunResult{Response: response}
	if toolsActive {
		stats, err = o.runner.Run(r.Context(), r.URL.Path, headers, request, response)
		if err != nil {
			rec.Status = o.writeUpstreamError(w, err, log)
			return
		}
	}
	rec.ToolRounds = stats.Rounds
	rec.ToolCalls = stats.TotalCalls

	final := stats.Response
	if o.cfg.Modify.Response {
		final = o.finalizer.Finalize(final, stats)
	}

	if hybrid {
		openai.SetSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		rec.Status = http.StatusOK
		if err := o.synthesizer.Stream(r.Context(), w, final); err != nil {
			log.Debug("synthetic stream aborted", "error", err)
		}
		log.Info("request completed", "rounds", stats.Rounds, "tool_calls", stats.TotalCalls, "hybrid", true)
		return
	}

	rec.Status = http.StatusOK
	openai.WriteJSON(w, http.StatusOK, final)
	log.Info("request completed", "rounds", stats.Rounds, "tool_calls", stats.TotalCalls)
}

// passthrough forwards a request verbatim, streaming any body.
func (o *Orchestrator) passthrough(w http.ResponseWriter, r *http.Request, log *slog.Logger) int {
	return o.relay(w, r, r.Body, log)
}

// forwardRaw forwards an already-read body verbatim. Used for streaming
// chat requests and bodies the proxy could not parse.
func (o *Orchestrator) forwardRaw(w http.ResponseWriter, r *http.Request, body []byte, log *slog.Logger) int {
	return o.relay(w, r, readerFor(body), log)
}

func (o *Orchestrator) relay(w http.ResponseWriter, r *http.Request, body io.Reader, log *slog.Logger) int {
	headers := o.upstream.PassthroughHeaders(r.Header)
	resp, err := o.upstream.Do(r.Context(), r.Method, r.URL.Path, r.URL.RawQuery, headers, body)
	if err != nil {
		return o.writeUpstreamError(w, err, log)
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		w.Header()[k] = vs
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Client went away. Drop the upstream connection too.
				return resp.StatusCode
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				log.Debug("upstream body read ended", "error", readErr)
			}
			return resp.StatusCode
		}
	}
}

func (o *Orchestrator) writeUpstreamError(w http.ResponseWriter, err error, log *slog.Logger) int {
	var backendErr *BackendError
	var malformed *MalformedResponseError
	switch {
	case errors.As(err, &malformed):
		// Non-JSON backend body: relay it raw rather than failing the request.
		for k, vs := range malformed.Header {
			if isHopByHop(k) {
				continue
			}
			w.Header()[k] = vs
		}
		w.WriteHeader(malformed.Status)
		w.Write(malformed.Body)
		log.Warn("malformed backend response relayed", "status", malformed.Status, "error", malformed.Err)
		return malformed.Status
	case errors.As(err, &backendErr):
		// Relay backend errors verbatim.
		for k, vs := range backendErr.Header {
			if isHopByHop(k) {
				continue
			}
			w.Header()[k] = vs
		}
		w.WriteHeader(backendErr.Status)
		w.Write(backendErr.Body)
		log.Warn("backend error relayed", "status", backendErr.Status)
		return backendErr.Status
	case errors.Is(err, ErrUpstreamTimeout):
		log.Error("upstream timeout", "error", err)
		openai.WriteError(w, http.StatusGatewayTimeout, openai.ErrTypeUpstreamTimeout, "upstream request timed out")
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnreachable):
		log.Error("upstream unreachable", "error", err)
		openai.WriteError(w, http.StatusBadGateway, openai.ErrTypeUpstreamError, "upstream unreachable")
		return http.StatusBadGateway
	default:
		log.Error("proxy failure", "error", err)
		openai.WriteError(w, http.StatusBadGateway, openai.ErrTypeUpstreamError, err.Error())
		return http.StatusBadGateway
	}
}

func readerFor(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return bytes.NewReader(body)
}
