package sqlite

import (
	"context"
	"github.com/myrjola/casegen/internal/errors"
	"log/slog"
	"time"
)

const maintenanceInterval = time.Hour

// maintenance statements run on every tick. Stored cases are large JSON blobs, so the WAL is truncated to keep it
// from growing between automatic checkpoints. See https://www.sqlite.org/pragma.html#pragma_optimize and
// https://www.sqlite.org/pragma.html#pragma_wal_checkpoint.
var maintenance = []string{
	"PRAGMA optimize;",
	"PRAGMA wal_checkpoint(TRUNCATE);",
}

// startDatabaseOptimizer runs the maintenance statements once per maintenanceInterval until ctx is done.
func (db *Database) startDatabaseOptimizer(ctx context.Context) {
	for {
		db.maintain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(maintenanceInterval):
			continue
		}
	}
}

func (db *Database) maintain(ctx context.Context) {
	start := time.Now()
	for _, stmt := range maintenance {
		if _, err := db.ReadWrite.ExecContext(ctx, stmt); err != nil {
			if ctx.Err() != nil {
				return
			}
			err = errors.Wrap(err, "database maintenance", slog.String("statement", stmt))
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to maintain database", errors.SlogError(err))
			return
		}
	}
	db.logger.LogAttrs(ctx, slog.LevelDebug, "maintained database", slog.Duration("duration", time.Since(start)))
}
