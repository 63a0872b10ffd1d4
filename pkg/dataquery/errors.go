package dataquery

import "errors"

var (
	// ErrUnknownQuery mirrors config.ErrUnknownQuery for callers that only
	// import pkg/dataquery.
	ErrUnknownQuery = errors.New("unknown query")

	// ErrParamValidation is returned when a parameter is missing, mistyped,
	// or out of its declared range.
	ErrParamValidation = errors.New("parameter validation failed")

	// ErrResultTooLarge is returned when a query's row count exceeds the
	// per-query cap (default 50_000, spec §4.2).
	ErrResultTooLarge = errors.New("result too large")

	// ErrBackendFailure is returned after the single retry against the
	// engine also fails.
	ErrBackendFailure = errors.New("backend failure")

	// ErrPoolExhausted is returned when acquiring a connection-pool slot
	// exceeds the configured acquisition timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)
