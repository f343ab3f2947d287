package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/sqlite"
	"log/slog"
)

type runRow struct {
	ID      string         `db:"id"`
	Mode    string         `db:"mode"`
	Config  string         `db:"config"`
	Phase   string         `db:"phase"`
	Percent int            `db:"percent"`
	Stage   string         `db:"stage"`
	Failure sql.NullString `db:"failure"`
	Created string         `db:"created"`
	Updated string         `db:"updated"`
}

// RunRepository keeps the latest progress of every generation run so that it survives restarts.
type RunRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewRunRepository(db *sqlite.Database, logger *slog.Logger) *RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger.With(slog.String("source", "RunRepository")),
	}
}

// Upsert inserts the run or updates its progress. The config is written only on insert.
func (r *RunRepository) Upsert(ctx context.Context, run models.RunRecord) error {
	config, err := json.Marshal(run.Config)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	row := runRow{
		ID:      run.ID,
		Mode:    string(run.Mode),
		Config:  string(config),
		Phase:   run.Phase,
		Percent: run.Percent,
		Stage:   run.Stage,
		Failure: sql.NullString{String: run.Failure, Valid: run.Failure != ""},
		Created: "",
		Updated: "",
	}
	stmt := `INSERT INTO runs (id, mode, config, phase, percent, stage, failure)
VALUES (:id, :mode, :config, :phase, :percent, :stage, :failure)
ON CONFLICT (id) DO UPDATE SET phase   = excluded.phase,
                               percent = excluded.percent,
                               stage   = excluded.stage,
                               failure = excluded.failure`
	if _, err = r.db.ReadWrite.NamedExecContext(ctx, stmt, row); err != nil {
		return errors.Wrap(err, "upsert run", slog.String("run_id", run.ID))
	}
	return nil
}

// Get returns the run with id or ErrNotFound.
func (r *RunRepository) Get(ctx context.Context, id string) (models.RunRecord, error) {
	var row runRow
	stmt := `SELECT id, mode, config, phase, percent, stage, failure, created, updated FROM runs WHERE id = ?`
	if err := r.db.ReadOnly.GetContext(ctx, &row, stmt, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RunRecord{}, errors.Wrap(ErrNotFound, "get run", slog.String("run_id", id))
		}
		return models.RunRecord{}, errors.Wrap(err, "get run", slog.String("run_id", id))
	}

	run := models.RunRecord{ //nolint:exhaustruct // this is better for readability
		ID:      row.ID,
		Mode:    models.GenerationMode(row.Mode),
		Phase:   row.Phase,
		Percent: row.Percent,
		Stage:   row.Stage,
		Failure: row.Failure.String,
	}
	var err error
	if err = json.Unmarshal([]byte(row.Config), &run.Config); err != nil {
		return run, errors.Wrap(err, "unmarshal config", slog.String("run_id", id))
	}
	if run.Created, err = parseTimestamp(row.Created); err != nil {
		return run, err
	}
	if run.Updated, err = parseTimestamp(row.Updated); err != nil {
		return run, err
	}
	return run, nil
}

// FailUnfinished marks every run that is not done or failed as failed with message. Runs live in the memory of the
// process that started them, so after a restart nothing will ever finish them.
func (r *RunRepository) FailUnfinished(ctx context.Context, message string) (int64, error) {
	stmt := `UPDATE runs SET phase = 'failed', failure = ? WHERE phase NOT IN ('done', 'failed')`
	result, err := r.db.ReadWrite.ExecContext(ctx, stmt, message)
	if err != nil {
		return 0, errors.Wrap(err, "fail unfinished runs")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	if affected > 0 {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "marked interrupted runs as failed", slog.Int64("runs", affected))
	}
	return affected, nil
}
