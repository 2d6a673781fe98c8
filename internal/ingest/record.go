// Package ingest submits artifacts to a remote processing service and blocks
// until every submitted artifact is ready for use by a conversation.
package ingest

import "context"

// Status is the processing state of a submitted artifact as reported by the
// remote service.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition can occur from s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Artifact is a unit of content handed to the remote service.
type Artifact struct {
	Path  string // local path or other content reference
	Kind  string // MIME type, used by the remote to pick a parser
	Label string // human-readable name, diagnostics only

	// Optional artifacts are dropped from the result instead of failing the
	// whole batch.
	Optional bool
}

// Record is a read-only snapshot of a submission as the remote service sees it.
type Record struct {
	ID       string
	Label    string
	Kind     string
	Status   Status
	Location string // addressable URI, set once Status is Ready
	Optional bool
}

// ReadyArtifact is a record that reached StatusReady.
type ReadyArtifact struct {
	ID       string
	Label    string
	Kind     string
	Location string
}

// RemoteService is the asynchronous processing service artifacts are
// submitted to. Submit should wrap ErrSubmissionRejected when the artifact is
// refused, and Status should wrap ErrRecordNotFound for unknown identifiers.
type RemoteService interface {
	Submit(ctx context.Context, artifact Artifact) (Record, error)
	Status(ctx context.Context, id string) (Record, error)
}
