package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const artifactRefreshTimeout = 30 * time.Minute

// newArtifactRefreshTask re-ingests the reference documents so their remote
// copies do not expire. A failed refresh leaves the previous set in place.
func newArtifactRefreshTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "artifact_refresh")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting artifact refresh")
		start := deps.clock().Now()

		timeoutCtx, cancel := context.WithTimeout(ctx, artifactRefreshTimeout)
		defer cancel()

		err := deps.Session.Refresh(timeoutCtx)
		duration := deps.clock().Since(start)
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			log.WarnContext(ctx, "Artifact refresh timed out or was cancelled", "error", err, "duration", duration)
			return fmt.Errorf("artifact refresh timed out or was cancelled: %w", err)
		case err != nil:
			log.ErrorContext(ctx, "Artifact refresh failed", "error", err, "duration", duration)
			return fmt.Errorf("artifact refresh failed: %w", err)
		}

		log.InfoContext(ctx, "Artifact refresh completed", "duration", duration)
		return nil
	}
}
