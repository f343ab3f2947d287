package main

import (
	"context"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/myrjola/casegen/internal/sqlite"
	"log/slog"
	"os"
	"time"
)

// migratetest applies the current schema to a copy of a production database and checks that the cases survive.
func main() {
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug, false)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("CASEGEN_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "CASEGEN_SQLITE_URL not set")
		os.Exit(1) //nolint:gocritic // cancel is not needed when exiting.
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Fetch the number of cases from the database and print it out as a simple smoke test.
	var count int
	if err = db.ReadOnly.GetContext(ctx, &count, `SELECT COUNT(*) FROM cases`); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error fetching case count", errors.SlogError(err))
		os.Exit(1)
	}
	if count == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no cases found, something is likely wrong")
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "case count", slog.Int("count", count))

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
