package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/toolgate/toolgate/internal/openai"
)

var (
	// ErrToolNotFound is returned when no provider claims a tool name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrProviderUnavailable is returned when the owning provider's
	// connection is gone.
	ErrProviderUnavailable = errors.New("tool provider unavailable")
)

// Descriptor describes one callable tool advertised by a provider.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
	Provider    string
}

// Provider is a connected tool-provider process. Implementations must be safe
// for concurrent use.
type Provider interface {
	Name() string
	Connected() bool
	Tools() []Descriptor
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// entry is one registered tool with its compiled argument validator.
type entry struct {
	desc      Descriptor
	validator *argValidator // nil when the schema did not compile
}

// Registry holds the set of currently available tools. Providers register at
// startup or reconnect; many in-flight requests read concurrently.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	keys      map[string]string // qualified or bare tool key -> provider name
	entries   []*entry          // insertion order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		keys:      make(map[string]string),
	}
}

// Register adds a provider and all tools it advertises. Each tool is
// registered under its qualified key "provider:name" and, when not already
// claimed by an earlier provider, under the bare name as well: the first
// registrant owns the bare alias.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	r.providers[name] = p
	for _, desc := range p.Tools() {
		desc.Provider = name
		r.keys[name+":"+desc.Name] = name
		if _, claimed := r.keys[desc.Name]; !claimed {
			r.keys[desc.Name] = name
		}
		r.entries = append(r.entries, &entry{
			desc:      desc,
			validator: compileValidator(desc.InputSchema),
		})
	}
}

// Unregister removes a provider and every tool it owns, including bare
// aliases it had claimed.
func (r *Registry) Unregister(providerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.providers, providerName)
	for key, owner := range r.keys {
		if owner == providerName {
			delete(r.keys, key)
		}
	}
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.desc.Provider != providerName {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// List returns all registered tools in insertion order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Providers returns the names of all registered providers.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// FormatForBackend projects the registered tools into the function-calling
// schema the backend expects.
func (r *Registry) FormatForBackend() []openai.Payload {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]openai.Payload, 0, len(r.entries))
	for _, e := range r.entries {
		params := e.desc.InputSchema
		if params == nil {
			params = map[string]any{}
		}
		out = append(out, openai.Payload{
			"type": "function",
			"function": openai.Payload{
				"name":        e.desc.Name,
				"description": e.desc.Description,
				"parameters":  params,
			},
		})
	}
	return out
}

// Invoke resolves which provider owns name and calls the tool. Resolution
// tries the exact key first, then falls back to any qualified key ending in
// ":name", so a bare name still resolves when a collision forced the tool
// under a provider prefix.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	owner, ok := r.keys[name]
	if !ok {
		for key, providerName := range r.keys {
			if strings.HasSuffix(key, ":"+name) {
				owner = providerName
				ok = true
				break
			}
		}
	}
	var provider Provider
	var validator *argValidator
	if ok {
		provider = r.providers[owner]
		bare := bareToolName(name)
		for _, e := range r.entries {
			if e.desc.Provider == owner && e.desc.Name == bare {
				validator = e.validator
				break
			}
		}
	}
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if provider == nil || !provider.Connected() {
		return "", fmt.Errorf("%w: provider %s for tool %s", ErrProviderUnavailable, owner, name)
	}
	if validator != nil {
		if err := validator.validate(args); err != nil {
			return "", fmt.Errorf("invalid arguments for tool %s: %w", name, err)
		}
	}
	return provider.Call(ctx, bareToolName(name), args)
}

// bareToolName strips a "provider:" prefix if present.
func bareToolName(name string) string {
	if i := strings.Index(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}
