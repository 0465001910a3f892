package storage

import (
	"context"
	"time"

	"hapdb/internal/parser"
)

// ── Data Types ───────────────────────────────────────────────────

// RecordEntry is a stored record plus its storage identity.
type RecordEntry struct {
	ID       uint64 `json:"id"`
	IngestID string `json:"ingest_id"`
	parser.Record
}

// IngestRun describes one batch handed to a sink.
type IngestRun struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	StartedAt string `json:"started_at"`
	Records   int    `json:"records"`
	Location  string `json:"location,omitempty"` // where the sink put the batch
}

// AggregatedStats holds computed statistics over all stored records.
type AggregatedStats struct {
	TotalRecords    int            `json:"total_records"`
	TotalIngests    int            `json:"total_ingests"`
	InvalidRequests int            `json:"invalid_requests"`
	StatusClasses   map[string]int `json:"status_classes"`
	TopBackend      string         `json:"top_backend"`
	TopServer       string         `json:"top_server"`
	AvgTotalTimeMs  float64        `json:"avg_total_time_ms"`
	SaturatedTimers int            `json:"saturated_timers"`
}

// ListOpts defines pagination and filtering for list queries.
type ListOpts struct {
	Page     int    // 1-indexed
	PageSize int    // default 20
	Frontend string // empty = all
	Backend  string
	Server   string
	Method   string
	Status   int // 0 = all
	Since    time.Time
	Until    time.Time
}

// ListResult wraps a paginated result set.
type ListResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// ── Interfaces ───────────────────────────────────────────────────

// Sink durably writes a batch of parsed records.
type Sink interface {
	Ingest(ctx context.Context, source string, records []parser.Record) (*IngestRun, error)
}

// Store is a queryable Sink.
// Implementations must be goroutine-safe.
type Store interface {
	Sink

	GetRecord(id uint64) (*RecordEntry, error)
	ListRecords(opts ListOpts) (*ListResult[RecordEntry], error)
	ListIngests() ([]IngestRun, error)
	GetStats() (*AggregatedStats, error)

	Close() error
}
