package pdf

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned when an export is requested while another is running.
	ErrBusy = errors.New("export already in progress")
	// ErrNoDocument is returned by operations that need a loaded document.
	ErrNoDocument = errors.New("no document loaded")
	// ErrEmptyInput is the cause of a LoadError for a zero-length buffer.
	ErrEmptyInput = errors.New("empty input")
	// ErrTooLarge is the cause of a LoadError for a buffer over the size limit.
	ErrTooLarge = errors.New("input exceeds size limit")
	// ErrSuperseded is returned by a load that finished after a newer load started.
	ErrSuperseded = errors.New("load superseded by a newer document")
)

// LoadError reports unparseable, corrupt, empty or oversized input.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return "load pdf: " + e.Reason
	}
	if e.Reason == "" {
		return fmt.Sprintf("load pdf: %v", e.Err)
	}
	return fmt.Sprintf("load pdf: %s: %v", e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TimeoutError reports a render or text extraction that exceeded its time
// bound.
type TimeoutError struct {
	Op      string
	After   time.Duration
	Retried bool
	Err     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s timed out after %s", e.Op, e.After)
	if e.Retried {
		msg += " (retry also timed out)"
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RenderError reports a single page that could not be rasterized.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ExportError reports a failure to produce the output document.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export pdf: %v", e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// ValidationError reports a rejected caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
