package storage

import (
	"context"
	"errors"
	"time"

	"codearchitect/internal/orchestrator"
)

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = errors.New("run not found")

// RunStore archives finished runs, successful or not.
type RunStore interface {
	// SaveRun upserts a run by its ID.
	SaveRun(ctx context.Context, res *orchestrator.Result) error

	// GetRun loads a run with its plan, sections, script and report.
	GetRun(ctx context.Context, id string) (*orchestrator.Result, error)

	// ListRuns returns summaries, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	Close() error
}

// RunSummary is the lightweight row used for listings.
type RunSummary struct {
	ID         string             `json:"id"`
	Prompt     string             `json:"prompt"`
	Provider   string             `json:"provider"`
	Model      string             `json:"model"`
	Language   string             `json:"language"`
	State      orchestrator.State `json:"state"`
	Sections   int                `json:"sections"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}
