// Package converter turns source document bytes into Markdown text,
// either via a remote conversion service or a local best-effort
// converter for simple formats.
package converter

import (
	"context"
	"errors"
)

// Sentinel error kinds a Converter may fail with. Callers distinguish
// retriable failures (Unavailable) from permanent ones (Rejected,
// Timeout).
var (
	ErrUnavailable = errors.New("converter: service unavailable")
	ErrTimeout     = errors.New("converter: conversion timed out")
	ErrRejected    = errors.New("converter: input rejected")
)

// Converter turns document bytes into Markdown text.
type Converter interface {
	// Convert submits content for filename and returns its Markdown
	// rendering, or one of the sentinel errors above.
	Convert(ctx context.Context, filename string, content []byte) (string, error)

	// Health reports whether the converter backend is reachable.
	Health(ctx context.Context) bool
}
