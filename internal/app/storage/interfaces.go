// Package storage defines the persistence contracts for run history.
package storage

import (
	"context"
	"errors"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ExecutionStore persists execution records.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, rec execution.Record) (execution.Record, error)
	GetExecution(ctx context.Context, id string) (execution.Record, error)
	ListExecutions(ctx context.Context, limit int) ([]execution.Record, error)
}
