// Package store persists dedup and match runs and their association tables.
package store

import (
	"context"
	"errors"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/model"
)

// ErrNotFound is matched by lookups of unknown runs.
var ErrNotFound = errors.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   model.RunKind   `json:"kind,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// limit returns the page size, defaulting to 100.
func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind model.RunKind, params model.RunParams) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Associations
	SaveAssociations(ctx context.Context, runID string, assocs []model.Association) (int64, error)
	ListAssociations(ctx context.Context, runID string) ([]model.Association, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// failureResult records runErr as the result of a failed run.
func failureResult(runErr error) *model.RunResult {
	msg := "unknown error"
	if runErr != nil {
		msg = runErr.Error()
	}
	return &model.RunResult{Error: msg}
}
