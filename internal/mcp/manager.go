package mcp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/toolgate/toolgate/internal/tools"
)

// Manager owns the lifecycle of all configured tool providers and keeps the
// registry in sync with what is actually connected.
type Manager struct {
	registry *tools.Registry
	log      *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewManager creates a manager that registers providers into registry.
func NewManager(registry *tools.Registry, log *slog.Logger) *Manager {
	return &Manager{
		registry: registry,
		log:      log.With("component", "mcp"),
		clients:  make(map[string]*Client),
	}
}

// Connect starts every configured provider and registers its tools. A
// provider that fails to start is logged and skipped; the proxy still runs
// with the providers that did connect.
func (m *Manager) Connect(ctx context.Context, cfg *Config) {
	for name, serverCfg := range cfg.Servers {
		client := NewClient(name, serverCfg)
		if err := client.Start(ctx); err != nil {
			m.log.Error("provider failed to start", "provider", name, "error", err)
			continue
		}

		m.mu.Lock()
		m.clients[name] = client
		m.mu.Unlock()

		m.registry.Register(client)
		m.log.Info("provider connected", "provider", name, "tools", len(client.Tools()))
	}
}

// Disconnect stops one provider and removes its tools from the registry.
func (m *Manager) Disconnect(name string) {
	m.mu.Lock()
	client, ok := m.clients[name]
	delete(m.clients, name)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.registry.Unregister(name)
	if err := client.Stop(); err != nil {
		m.log.Error("provider stop failed", "provider", name, "error", err)
	}
}

// Shutdown stops all providers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	names := make([]string, 0, len(m.clients))
	for name, c := range m.clients {
		clients = append(clients, c)
		names = append(names, name)
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for i, c := range clients {
		m.registry.Unregister(names[i])
		if err := c.Stop(); err != nil {
			m.log.Error("provider stop failed", "provider", names[i], "error", err)
		}
	}
}
