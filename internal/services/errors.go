package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInstalled indicates a required external tool or model is missing.
	ErrNotInstalled = errors.New("not installed")
	// ErrSubprocess indicates an external tool started but exited with failure.
	ErrSubprocess = errors.New("subprocess error")
	// ErrEmptyResult indicates a stage produced no usable output.
	ErrEmptyResult = errors.New("empty result")
	// ErrCancelled indicates the task was cancelled by request.
	ErrCancelled = errors.New("cancelled")
	// ErrIO indicates a filesystem read or write failed.
	ErrIO = errors.New("io error")
	// ErrNotFound indicates a referenced task, model, or file does not exist.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrSubprocess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancelled reports whether err represents a user-requested or
// context-driven cancellation rather than a genuine failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
