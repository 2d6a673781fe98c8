package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"google.golang.org/genai"

	"github.com/edgard/nightguide/internal/ingest"
)

// FileAPI is the subset of the genai Files service used for ingestion.
// *genai.Files satisfies it.
type FileAPI interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
}

// FileService uploads artifacts to the Gemini Files API and reports their
// processing state.
type FileService struct {
	api FileAPI
	log *slog.Logger
}

// NewFileService wraps api as an ingest.RemoteService.
func NewFileService(api FileAPI, log *slog.Logger) *FileService {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileService{api: api, log: log.With("provider", "gemini_files")}
}

// Submit uploads the local file at a.Path.
func (s *FileService) Submit(ctx context.Context, a ingest.Artifact) (ingest.Record, error) {
	if _, err := os.Stat(a.Path); err != nil {
		return ingest.Record{}, fmt.Errorf("%w: %w", ingest.ErrSubmissionRejected, err)
	}

	f, err := s.api.UploadFromPath(ctx, a.Path, &genai.UploadFileConfig{
		MIMEType:    a.Kind,
		DisplayName: a.Label,
	})
	if err != nil {
		return ingest.Record{}, fmt.Errorf("%w: upload %s: %w", ingest.ErrSubmissionRejected, a.Path, err)
	}
	if f == nil {
		return ingest.Record{}, fmt.Errorf("%w: upload %s returned no file", ingest.ErrSubmissionRejected, a.Path)
	}

	s.log.DebugContext(ctx, "File uploaded", "name", f.Name, "uri", f.URI, "state", f.State)
	return toRecord(f), nil
}

// Status fetches the file's current state. Unknown or inaccessible files are
// reported as ingest.ErrRecordNotFound.
func (s *FileService) Status(ctx context.Context, id string) (ingest.Record, error) {
	f, err := s.api.Get(ctx, id, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusForbidden) {
			return ingest.Record{}, fmt.Errorf("%w: %w", ingest.ErrRecordNotFound, err)
		}
		return ingest.Record{}, fmt.Errorf("get file %s: %w", id, err)
	}
	if f == nil {
		return ingest.Record{}, fmt.Errorf("get file %s returned no file", id)
	}

	if f.State == genai.FileStateFailed && f.Error != nil {
		s.log.WarnContext(ctx, "File processing failed", "name", f.Name, "reason", f.Error.Message)
	}
	return toRecord(f), nil
}

func toRecord(f *genai.File) ingest.Record {
	rec := ingest.Record{
		ID:     f.Name,
		Label:  f.DisplayName,
		Kind:   f.MIMEType,
		Status: toStatus(f.State),
	}
	if rec.Status == ingest.StatusReady {
		rec.Location = f.URI
	}
	return rec
}

func toStatus(state genai.FileState) ingest.Status {
	switch state {
	case genai.FileStateActive:
		return ingest.StatusReady
	case genai.FileStateProcessing:
		return ingest.StatusProcessing
	case genai.FileStateFailed:
		return ingest.StatusFailed
	default:
		return ingest.StatusSubmitted
	}
}
