package tasks

import (
	"context"
	"fmt"
)

// newHistoryCleanupTask deletes conversation turns older than the configured
// retention. A zero retention keeps history forever.
func newHistoryCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "history_cleanup")

	return func(ctx context.Context) error {
		retention := deps.Config.Database.HistoryRetention
		if retention <= 0 {
			log.DebugContext(ctx, "History retention disabled, skipping cleanup")
			return nil
		}

		cutoff := deps.clock().Now().Add(-retention)
		deleted, err := deps.Store.DeleteMessagesBefore(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "History cleanup failed", "error", err, "cutoff", cutoff)
			return fmt.Errorf("history cleanup failed: %w", err)
		}

		log.InfoContext(ctx, "History cleanup completed", "deleted", deleted, "cutoff", cutoff)
		return nil
	}
}
