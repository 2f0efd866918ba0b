package ports

import (
	"context"

	"bayesprev/domain/core"
	"bayesprev/domain/fit"
)

// FitStore persists fit runs, parameter summaries, and evaluation metrics
type FitStore interface {
	SaveResult(ctx context.Context, result *fit.Result) error
	GetResult(ctx context.Context, runID core.RunID) (*fit.Result, error)
	ListRuns(ctx context.Context) ([]fit.Result, error)
	Close() error
}
