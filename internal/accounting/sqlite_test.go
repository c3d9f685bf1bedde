package accounting

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "requests.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndSummary(t *testing.T) {
	store := newTestStore(t)

	records := []Record{
		{ID: "r1", Method: "POST", Path: "/v1/chat/completions", Model: "m", Status: 200, ToolRounds: 2, ToolCalls: 3, Duration: 120 * time.Millisecond},
		{ID: "r2", Method: "POST", Path: "/v1/chat/completions", Model: "m", Status: 200, Hybrid: true, Streaming: true},
		{ID: "r3", Method: "GET", Path: "/v1/models", Status: 502},
	}
	for _, rec := range records {
		if err := store.Record(rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	sum, err := store.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.Requests != 3 {
		t.Errorf("Requests = %d, want 3", sum.Requests)
	}
	if sum.ToolRounds != 2 {
		t.Errorf("ToolRounds = %d, want 2", sum.ToolRounds)
	}
	if sum.ToolCalls != 3 {
		t.Errorf("ToolCalls = %d, want 3", sum.ToolCalls)
	}
	if sum.Hybrid != 1 {
		t.Errorf("Hybrid = %d, want 1", sum.Hybrid)
	}
	if sum.Errors != 1 {
		t.Errorf("Errors = %d, want 1", sum.Errors)
	}
}

func TestSummaryEmpty(t *testing.T) {
	store := newTestStore(t)
	sum, err := store.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum.Requests != 0 {
		t.Errorf("Requests = %d, want 0", sum.Requests)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	store := newTestStore(t)
	rec := Record{ID: "dup", Method: "POST", Path: "/x", Status: 200}
	if err := store.Record(rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(rec); err == nil {
		t.Error("expected primary key violation")
	}
}
