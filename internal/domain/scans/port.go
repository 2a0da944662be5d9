package scans

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Repository.Get for unknown ids.
var ErrNotFound = errors.New("history entry not found")

// HistoryFilter narrows List/Count. Zero values mean "no filter".
type HistoryFilter struct {
	Limit    int
	Offset   int
	ScanType string
	Risk     string
	Query    string // substring of input
}

// Repository port (persistence untuk history)
type Repository interface {
	Record(ctx context.Context, e NewEntry) (int64, error)
	List(ctx context.Context, f HistoryFilter) ([]*HistoryEntry, error)
	Count(ctx context.Context, f HistoryFilter) (int64, error)
	Get(ctx context.Context, id int64) (*HistoryEntry, error)
	Clear(ctx context.Context) (int64, error)
}

// Provider port: one external threat-intelligence source.
// Query must never panic or block past ctx; failures are reported through
// ErrorResult instead of an error value.
type Provider interface {
	Name() string
	Supports(t IOCType) bool
	Query(ctx context.Context, ioc string, t IOCType) EngineResult
}

// ReportArchive port (object storage for rendered reports)
type ReportArchive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}
