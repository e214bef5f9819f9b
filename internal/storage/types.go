package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by drivers that were not compiled in.
var ErrDisabled = errors.New("storage driver disabled")

type Config struct {
	// Driver selects the backend: "file" (default) or "sqlite".
	Driver string
	Path   string
	// MaxRecords bounds retained history (default 500).
	MaxRecords  int
	BusyTimeout time.Duration
}

// TargetResult is the persisted per-target outcome.
type TargetResult struct {
	Target   string `json:"target"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// ReportRecord is one dispatch cycle as stored.
type ReportRecord struct {
	At        time.Time      `json:"at"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	TookMS    int64          `json:"took_ms"`
	Results   []TargetResult `json:"results,omitempty"`
}

type Store interface {
	AppendReport(ctx context.Context, rec ReportRecord) error
	// RecentReports returns up to n records, newest first.
	RecentReports(ctx context.Context, n int) ([]ReportRecord, error)
	Close() error
}
