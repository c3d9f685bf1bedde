// Package accounting records per-request statistics for the proxy.
package accounting

import "time"

// Record captures one completed proxy request.
type Record struct {
	ID         string
	Method     string
	Path       string
	Model      string
	Status     int
	ToolRounds int
	ToolCalls  int
	Streaming  bool
	Hybrid     bool
	Duration   time.Duration
}

// Summary aggregates the stored records.
type Summary struct {
	Requests   int64
	ToolRounds int64
	ToolCalls  int64
	Hybrid     int64
	Errors     int64 // status >= 500
}

// Store persists request records.
type Store interface {
	Record(rec Record) error
	Summary() (Summary, error)
	Close() error
}

// Noop discards all records. Used when accounting is disabled.
type Noop struct{}

func (Noop) Record(Record) error       { return nil }
func (Noop) Summary() (Summary, error) { return Summary{}, nil }
func (Noop) Close() error              { return nil }
