// Package tasks implements the scheduled maintenance jobs.
package tasks

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/nightguide/internal/config"
	"github.com/edgard/nightguide/internal/database"
)

// Refresher re-ingests the reference documents.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// TaskDeps contains the dependencies of the scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Session Refresher
	Config  *config.Config
	// Clock defaults to the real clock when nil.
	Clock clockwork.Clock
}

func (d TaskDeps) clock() clockwork.Clock {
	if d.Clock == nil {
		return clockwork.NewRealClock()
	}
	return d.Clock
}
