package ingest

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyBatch is returned when no artifacts are given.
	ErrEmptyBatch = errors.New("empty artifact batch")

	// ErrSubmissionRejected indicates the remote service refused an artifact.
	ErrSubmissionRejected = errors.New("submission rejected")

	// ErrIngestionFailed indicates an accepted artifact reached StatusFailed.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrRecordNotFound indicates the remote service does not know an identifier.
	ErrRecordNotFound = errors.New("record not found")

	// ErrTimeout indicates polling exceeded the configured maximum wait.
	ErrTimeout = errors.New("ingestion timed out")

	// ErrCancelled indicates the caller cancelled ingestion.
	ErrCancelled = errors.New("ingestion cancelled")
)

// SubmissionError reports the artifact whose submission failed.
type SubmissionError struct {
	Index int
	Label string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit artifact %d (%s): %v", e.Index, e.Label, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Is makes every SubmissionError match ErrSubmissionRejected.
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionRejected }

// IngestionFailedError identifies the artifact that reached StatusFailed.
type IngestionFailedError struct {
	ID    string
	Label string
}

func (e *IngestionFailedError) Error() string {
	return fmt.Sprintf("artifact %s (%s) failed to process", e.ID, e.Label)
}

func (e *IngestionFailedError) Is(target error) bool { return target == ErrIngestionFailed }

// NotFoundError identifies the artifact the remote service lost track of.
type NotFoundError struct {
	ID    string
	Label string
	Err   error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %s (%s) not found: %v", e.ID, e.Label, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrRecordNotFound }

// TimeoutError identifies the artifact still pending when the wait expired.
type TimeoutError struct {
	ID     string
	Label  string
	Status Status
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("artifact %s (%s) still %s after %s", e.ID, e.Label, e.Status, e.Waited)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
