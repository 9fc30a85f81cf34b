package ports

import (
	"context"
)

// StageStore persists the stage watermark (last completed stage number) of
// staged commands, one record per request id. Records must survive process
// restarts because stages arrive in separate invocations.
type StageStore interface {
	// Load returns the watermark for requestID.
	// Returns domain.ErrStageNotFound if no record exists and
	// domain.ErrInvalidStage if the stored value is not a non-negative integer.
	Load(ctx context.Context, requestID string) (int, error)

	// Save sets the watermark for requestID, creating storage as needed.
	Save(ctx context.Context, requestID string, stage int) error

	// Delete removes the record for requestID. Deleting a missing record is not an error.
	Delete(ctx context.Context, requestID string) error

	// List returns the request ids that currently hold a record.
	List(ctx context.Context) ([]string, error)
}
