package dataquery

import (
	"context"
	"time"

	"github.com/albarami/qnwis/pkg/models"
)

// Engine is the external data-engine collaborator (spec §6.3): it executes
// a parameter-bound template and returns row iterators, honoring the
// statement timeout carried on ctx. The core never builds SQL by string
// concatenation — binding happens in Engine.Run via the named placeholders
// the registry already validated.
type Engine interface {
	// Run executes the query identified by def against the bound params and
	// streams rows to the returned iterator. statementTimeout bounds how
	// long the engine itself may spend before returning a context error.
	Run(ctx context.Context, def *models.QueryDefinition, params map[string]any, statementTimeout time.Duration) (RowIter, error)
}

// RowIter is a forward-only iterator over an Engine's result rows.
type RowIter interface {
	// Next advances to the next row, returning false at end-of-stream or
	// on error (check Err() to distinguish).
	Next(ctx context.Context) bool
	// Row returns the current row. Valid only after Next returns true.
	Row() models.Row
	// Err returns the first error encountered, if any.
	Err() error
	// Close releases engine-side resources (connection, cursor, ...).
	Close() error
}
