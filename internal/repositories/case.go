package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/models"
	"github.com/myrjola/casegen/internal/sqlite"
	"log/slog"
	"time"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.NewSentinel("not found")

// DefaultCacheSize is the number of cases kept in the read cache.
const DefaultCacheSize = 128

// timestampLayout matches STRFTIME('%Y-%m-%dT%H:%M:%fZ') in schema.sql.
const timestampLayout = "2006-01-02T15:04:05.000Z"

type caseRow struct {
	ID       string `db:"id"`
	Title    string `db:"title"`
	Mode     string `db:"mode"`
	Graph    string `db:"graph"`
	Metadata string `db:"metadata"`
	Created  string `db:"created"`
}

// CaseRepository stores finished cases. Reads go through an LRU cache since stored cases never change.
type CaseRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
	cache  *lru.Cache[string, models.StoredCase]
}

func NewCaseRepository(db *sqlite.Database, logger *slog.Logger, cacheSize int) (*CaseRepository, error) {
	cache, err := lru.New[string, models.StoredCase](max(cacheSize, 1))
	if err != nil {
		return nil, errors.Wrap(err, "create case cache")
	}
	return &CaseRepository{
		db:     db,
		logger: logger.With(slog.String("source", "CaseRepository")),
		cache:  cache,
	}, nil
}

// Save stores a finished case. The run with the same id must exist.
func (r *CaseRepository) Save(ctx context.Context, c models.StoredCase) error {
	graph, err := json.Marshal(c.Graph)
	if err != nil {
		return errors.Wrap(err, "marshal graph")
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return errors.Wrap(err, "marshal metadata")
	}
	row := caseRow{
		ID:       c.ID,
		Title:    c.Title,
		Mode:     string(c.Mode),
		Graph:    string(graph),
		Metadata: string(metadataJSON),
		Created:  "",
	}
	stmt := `INSERT INTO cases (id, title, mode, graph, metadata)
VALUES (:id, :title, :mode, :graph, :metadata)
ON CONFLICT (id) DO UPDATE SET title = excluded.title, graph = excluded.graph, metadata = excluded.metadata`
	if _, err = r.db.ReadWrite.NamedExecContext(ctx, stmt, row); err != nil {
		return errors.Wrap(err, "insert case", slog.String("case_id", c.ID))
	}
	r.cache.Remove(c.ID)
	r.logger.LogAttrs(ctx, slog.LevelInfo, "case saved",
		slog.String("case_id", c.ID), slog.Int("nodes", len(c.Graph.Nodes)))
	return nil
}

// Get returns the case with id or ErrNotFound.
func (r *CaseRepository) Get(ctx context.Context, id string) (models.StoredCase, error) {
	if c, ok := r.cache.Get(id); ok {
		return c, nil
	}
	var row caseRow
	stmt := `SELECT id, title, mode, graph, metadata, created FROM cases WHERE id = ?`
	if err := r.db.ReadOnly.GetContext(ctx, &row, stmt, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StoredCase{}, errors.Wrap(ErrNotFound, "get case", slog.String("case_id", id))
		}
		return models.StoredCase{}, errors.Wrap(err, "get case", slog.String("case_id", id))
	}
	c, err := row.toModel()
	if err != nil {
		return models.StoredCase{}, err
	}
	r.cache.Add(id, c)
	return c, nil
}

// List returns the newest cases first.
func (r *CaseRepository) List(ctx context.Context, limit int) ([]models.CaseSummary, error) {
	var rows []caseRow
	stmt := `SELECT id, title, mode, created FROM cases ORDER BY created DESC, id LIMIT ?`
	if err := r.db.ReadOnly.SelectContext(ctx, &rows, stmt, limit); err != nil {
		return nil, errors.Wrap(err, "list cases")
	}
	summaries := make([]models.CaseSummary, 0, len(rows))
	for _, row := range rows {
		created, err := parseTimestamp(row.Created)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.CaseSummary{
			ID:      row.ID,
			Title:   row.Title,
			Mode:    models.GenerationMode(row.Mode),
			Created: created,
		})
	}
	return summaries, nil
}

func (row caseRow) toModel() (models.StoredCase, error) {
	c := models.StoredCase{
		ID:       row.ID,
		Title:    row.Title,
		Mode:     models.GenerationMode(row.Mode),
		Graph:    models.Graph{Nodes: nil, Edges: nil},
		Metadata: nil,
		Created:  time.Time{},
	}
	var err error
	if err = json.Unmarshal([]byte(row.Graph), &c.Graph); err != nil {
		return c, errors.Wrap(err, "unmarshal graph", slog.String("case_id", row.ID))
	}
	if err = json.Unmarshal([]byte(row.Metadata), &c.Metadata); err != nil {
		return c, errors.Wrap(err, "unmarshal metadata", slog.String("case_id", row.ID))
	}
	if c.Created, err = parseTimestamp(row.Created); err != nil {
		return c, err
	}
	return c, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse timestamp", slog.String("value", s))
	}
	return t, nil
}
