package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/toolgate/toolgate/internal/accounting"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/openai"
	"github.com/toolgate/toolgate/internal/tools"
)

// Server hosts the proxy endpoints: health, status, and the catch-all
// forwarder.
type Server struct {
	cfg          *config.Config
	orchestrator *Orchestrator
	registry     *tools.Registry
	store        accounting.Store
	log          *slog.Logger
	server       *http.Server
}

func NewServer(cfg *config.Config, orchestrator *Orchestrator, registry *tools.Registry, store accounting.Store, log *slog.Logger) *Server {
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		registry:     registry,
		store:        store,
		log:          log.With("component", "server"),
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/proxy/status", s.cors(s.handleStatus))
	mux.HandleFunc("/", s.cors(s.orchestrator.ServeHTTP))

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Listen.Host, s.cfg.Listen.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-time.After(50 * time.Millisecond):
		s.log.Info("listening", "addr", s.server.Addr, "upstream", s.orchestrator.upstream.BaseURL())
		return nil
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		openai.WriteError(w, http.StatusMethodNotAllowed, openai.ErrTypeInvalidRequest, "method not allowed")
		return
	}
	openai.WriteJSON(w, http.StatusOK, openai.Payload{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		openai.WriteError(w, http.StatusMethodNotAllowed, openai.ErrTypeInvalidRequest, "method not allowed")
		return
	}

	toolList := s.registry.List()
	names := make([]string, 0, len(toolList))
	for _, d := range toolList {
		names = append(names, d.Name)
	}

	status := openai.Payload{
		"upstream": s.orchestrator.upstream.BaseURL(),
		"tools": openai.Payload{
			"enabled":    s.cfg.Tools.Enabled,
			"count":      len(names),
			"names":      names,
			"max_rounds": s.cfg.Tools.MaxRounds,
			"priority":   s.cfg.Tools.Priority,
		},
		"hybrid": openai.Payload{
			"enabled":    s.cfg.Hybrid.Enabled,
			"chunk_size": s.cfg.Hybrid.ChunkSize,
		},
	}
	if sum, err := s.store.Summary(); err == nil {
		status["requests"] = openai.Payload{
			"total":       sum.Requests,
			"tool_rounds": sum.ToolRounds,
			"tool_calls":  sum.ToolCalls,
			"hybrid":      sum.Hybrid,
			"errors":      sum.Errors,
		}
	}
	openai.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
