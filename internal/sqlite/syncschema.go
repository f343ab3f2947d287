package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/random"
	"log/slog"
	"os"
	"strings"
	"syscall"
)

// Schema diff queries between the live database (main) and the target schema attached as schemaTarget.
const (
	deletedTablesQuery = `SELECT current.name
FROM main.sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND target.type IS NULL AND current.name NOT LIKE 'sqlite_%'`

	newTablesQuery = `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN main.sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type = 'table' AND current.type IS NULL AND target.name NOT LIKE 'sqlite_%'`

	changedTablesQuery = `SELECT current.name, target.sql
FROM main.sqlite_schema AS current
JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql`

	// Column names are quoted since some of them may be SQLite keywords.
	commonColumnsQuery = `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(?) AS current
JOIN PRAGMA_TABLE_INFO(?, 'schemaTarget') AS target ON target.name = current.name`

	staleIndexesAndTriggersQuery = `SELECT 'DROP ' || UPPER(current.type) || ' IF EXISTS "' || current.name || '"'
FROM main.sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type IN ('index', 'trigger') AND current.sql IS NOT NULL
  AND (target.sql IS NULL OR target.sql <> current.sql)`

	newIndexesAndTriggersQuery = `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN main.sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type IN ('index', 'trigger') AND target.sql IS NOT NULL AND current.sql IS NULL
ORDER BY target.type`
)

type changedTable struct {
	Name   string `db:"name"`
	NewSQL string `db:"sql"`
}

// migrateTo makes the live schema match schemaDefinition declaratively: tables missing from the target are
// dropped, new ones created, changed ones rebuilt with the generalized ALTER TABLE procedure from
// https://www.sqlite.org/lang_altertable.html#otheralter, and stale indexes and triggers recreated.
//
// After https://david.rothlis.net/declarative-schema-migration-for-sqlite/.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	// PRAGMA foreign_keys and ATTACH do not work inside a transaction, so they run on a pinned connection.
	conn, err := db.ReadWrite.Connx(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to release connection", errors.SlogError(closeErr))
		}
	}()

	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	defer func() {
		if _, fkErr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			// Writing without foreign keys would corrupt the cases of a run.
			fkErr = errors.Wrap(fkErr, "re-enable foreign key validation")
			db.logger.LogAttrs(ctx, slog.LevelError, "exit to avoid data corruption", errors.SlogError(fkErr))
			if killErr := syscall.Kill(syscall.Getpid(), syscall.SIGINT); killErr != nil {
				os.Exit(1)
			}
		}
	}()

	detach, err := db.attachSchemaTarget(ctx, conn, schemaDefinition)
	if err != nil {
		return err
	}
	defer detach()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction", errors.SlogError(rollbackErr))
		}
	}()

	if err = db.migrateTables(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}
	if err = db.migrateIndexesAndTriggers(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate indexes and triggers")
	}
	if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// attachSchemaTarget builds schemaDefinition in a fresh in-memory database and attaches it to conn as schemaTarget.
// The returned function detaches and closes it.
func (db *Database) attachSchemaTarget(ctx context.Context, conn *sqlx.Conn, schemaDefinition string) (func(), error) {
	var dbNameLength uint = 20
	name, err := random.Letters(dbNameLength)
	if err != nil {
		return nil, errors.Wrap(err, "generate random ID")
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open schema target database")
	}
	closeTarget := func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target database",
				errors.SlogError(closeErr))
		}
	}
	// The shared in-memory database lives only as long as one of its connections.
	target.SetMaxIdleConns(1)
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		closeTarget()
		return nil, errors.Wrap(err, "build schema target database")
	}
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		closeTarget()
		return nil, errors.Wrap(err, "attach schema target database")
	}
	return func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach schema target database",
				errors.SlogError(detachErr))
		}
		closeTarget()
	}, nil
}

func (db *Database) migrateTables(ctx context.Context, tx *sqlx.Tx) error {
	var deleted []string
	if err := tx.SelectContext(ctx, &deleted, deletedTablesQuery); err != nil {
		return errors.Wrap(err, "query deleted tables")
	}
	for _, table := range deleted {
		if err := db.exec(ctx, tx, "dropping table", fmt.Sprintf(`DROP TABLE "%s"`, table)); err != nil {
			return err
		}
	}

	var created []string
	if err := tx.SelectContext(ctx, &created, newTablesQuery); err != nil {
		return errors.Wrap(err, "query new tables")
	}
	for _, stmt := range created {
		if err := db.exec(ctx, tx, "creating table", stmt); err != nil {
			return err
		}
	}

	var changed []changedTable
	if err := tx.SelectContext(ctx, &changed, changedTablesQuery); err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	for _, table := range changed {
		if err := db.rebuildTable(ctx, tx, table); err != nil {
			return errors.Wrap(err, "rebuild table", slog.String("table", table.Name))
		}
	}
	return nil
}

// rebuildTable creates the new definition under a temporary name, copies the shared columns over and swaps the
// tables.
func (db *Database) rebuildTable(ctx context.Context, tx *sqlx.Tx, table changedTable) error {
	tempName := table.Name + "_migration_temp"
	if err := db.exec(ctx, tx, "creating rebuilt table",
		strings.Replace(table.NewSQL, table.Name, tempName, 1)); err != nil {
		return err
	}

	var columns []string
	if err := tx.SelectContext(ctx, &columns, commonColumnsQuery, table.Name, table.Name); err != nil {
		return errors.Wrap(err, "query common columns")
	}
	common := strings.Join(columns, ", ")
	stmts := []string{
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tempName, common, common, table.Name),
		fmt.Sprintf("DROP TABLE %s", table.Name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tempName, table.Name),
	}
	for _, stmt := range stmts {
		if err := db.exec(ctx, tx, "rebuilding table", stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateIndexesAndTriggers drops the indexes and triggers that are missing from or differ in the target schema
// and then creates the ones the live schema lacks.
func (db *Database) migrateIndexesAndTriggers(ctx context.Context, tx *sqlx.Tx) error {
	var drops []string
	if err := tx.SelectContext(ctx, &drops, staleIndexesAndTriggersQuery); err != nil {
		return errors.Wrap(err, "query stale indexes and triggers")
	}
	for _, stmt := range drops {
		if err := db.exec(ctx, tx, "dropping index or trigger", stmt); err != nil {
			return err
		}
	}

	var creates []string
	if err := tx.SelectContext(ctx, &creates, newIndexesAndTriggersQuery); err != nil {
		return errors.Wrap(err, "query new indexes and triggers")
	}
	for _, stmt := range creates {
		if err := db.exec(ctx, tx, "creating index or trigger", stmt); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) exec(ctx context.Context, tx *sqlx.Tx, msg, stmt string) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, msg, slog.String("query", stmt))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "execute migration statement", slog.String("query", stmt))
	}
	return nil
}
