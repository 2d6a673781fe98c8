package tasks

import (
	"context"
	"fmt"
)

// newSQLMaintenanceTask runs ANALYZE and VACUUM on the database.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting SQL maintenance")
		start := deps.clock().Now()

		err := deps.Store.RunSQLMaintenance(ctx)
		duration := deps.clock().Since(start)
		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "SQL maintenance completed", "duration", duration)
		return nil
	}
}
