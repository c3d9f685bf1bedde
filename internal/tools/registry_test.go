package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeProvider is an in-memory Provider for registry tests.
type fakeProvider struct {
	name      string
	connected bool
	tools     []Descriptor
	calls     []string
	result    string
	err       error
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) Connected() bool     { return f.connected }
func (f *fakeProvider) Tools() []Descriptor { return f.tools }

func (f *fakeProvider) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	return f.result, f.err
}

func newFakeProvider(name string, toolNames ...string) *fakeProvider {
	p := &fakeProvider{name: name, connected: true, result: "ok"}
	for _, tn := range toolNames {
		p.tools = append(p.tools, Descriptor{Name: tn, Description: tn + " tool"})
	}
	return p
}

func TestRegisterAndInvokeBareName(t *testing.T) {
	r := NewRegistry()
	p := newFakeProvider("alpha", "get_time")
	r.Register(p)

	out, err := r.Invoke(context.Background(), "get_time", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "ok" {
		t.Errorf("result = %q, want ok", out)
	}
	if len(p.calls) != 1 || p.calls[0] != "get_time" {
		t.Errorf("provider calls = %v, want [get_time]", p.calls)
	}
}

func TestInvokeQualifiedName(t *testing.T) {
	r := NewRegistry()
	p := newFakeProvider("alpha", "get_time")
	r.Register(p)

	if _, err := r.Invoke(context.Background(), "alpha:get_time", nil); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	// The provider receives the bare name.
	if p.calls[0] != "get_time" {
		t.Errorf("provider got %q, want get_time", p.calls[0])
	}
}

func TestBareAliasFirstRegistrantWins(t *testing.T) {
	r := NewRegistry()
	first := newFakeProvider("first", "shared")
	first.result = "from-first"
	second := newFakeProvider("second", "shared")
	second.result = "from-second"
	r.Register(first)
	r.Register(second)

	out, err := r.Invoke(context.Background(), "shared", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "from-first" {
		t.Errorf("bare name resolved to %q, want from-first", out)
	}

	out, err = r.Invoke(context.Background(), "second:shared", nil)
	if err != nil {
		t.Fatalf("qualified Invoke failed: %v", err)
	}
	if out != "from-second" {
		t.Errorf("qualified name resolved to %q, want from-second", out)
	}
}

func TestInvokeSuffixFallback(t *testing.T) {
	r := NewRegistry()
	// Claim the bare alias with an unrelated provider, then unregister it so
	// only the qualified key remains.
	blocker := newFakeProvider("blocker", "lookup")
	r.Register(blocker)
	p := newFakeProvider("beta", "lookup")
	p.result = "beta-result"
	r.Register(p)
	r.Unregister("blocker")

	out, err := r.Invoke(context.Background(), "lookup", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "beta-result" {
		t.Errorf("result = %q, want beta-result", out)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}

func TestInvokeDisconnectedProvider(t *testing.T) {
	r := NewRegistry()
	p := newFakeProvider("alpha", "get_time")
	r.Register(p)
	p.connected = false

	_, err := r.Invoke(context.Background(), "get_time", nil)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestUnregisterRemovesTools(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeProvider("alpha", "a", "b"))
	r.Register(newFakeProvider("beta", "c"))

	r.Unregister("alpha")

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if _, err := r.Invoke(context.Background(), "a", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound after unregister", err)
	}
	if _, err := r.Invoke(context.Background(), "c", nil); err != nil {
		t.Errorf("surviving provider broken: %v", err)
	}
}

func TestFormatForBackend(t *testing.T) {
	r := NewRegistry()
	p := newFakeProvider("alpha")
	p.tools = []Descriptor{{
		Name:        "add",
		Description: "Add two numbers",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
		},
	}}
	r.Register(p)

	formatted := r.FormatForBackend()
	if len(formatted) != 1 {
		t.Fatalf("got %d tools, want 1", len(formatted))
	}
	if formatted[0]["type"] != "function" {
		t.Errorf("type = %v, want function", formatted[0]["type"])
	}
	fn := formatted[0]["function"].(map[string]any)
	if fn["name"] != "add" {
		t.Errorf("name = %v, want add", fn["name"])
	}
	if fn["parameters"] == nil {
		t.Error("parameters missing")
	}
}

func TestInvokeValidatesArguments(t *testing.T) {
	r := NewRegistry()
	p := newFakeProvider("alpha")
	p.tools = []Descriptor{{
		Name: "add",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"a"},
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
			},
		},
	}}
	r.Register(p)

	if _, err := r.Invoke(context.Background(), "add", map[string]any{"a": 1.0}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
	if _, err := r.Invoke(context.Background(), "add", map[string]any{}); err == nil {
		t.Error("expected validation error for missing required field")
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Register(newFakeProvider(fmt.Sprintf("p%d", i), fmt.Sprintf("tool%d", i)))
	}
	list := r.List()
	for i, d := range list {
		want := fmt.Sprintf("tool%d", i)
		if d.Name != want {
			t.Errorf("list[%d] = %q, want %q", i, d.Name, want)
		}
	}
}
