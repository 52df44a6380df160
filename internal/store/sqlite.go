package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/resolver-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entities (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	entity_id    TEXT NOT NULL,
	entity_type  TEXT NOT NULL,
	pep_flag     INTEGER NOT NULL DEFAULT 0,
	confidence   REAL NOT NULL,
	risk_score   REAL NOT NULL,
	data         TEXT NOT NULL,
	PRIMARY KEY (run_id, entity_id)
);

CREATE TABLE IF NOT EXISTS party_map (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	party_id  TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	PRIMARY KEY (run_id, party_id)
);

CREATE TABLE IF NOT EXISTS exclusions (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	party_id TEXT,
	source   TEXT,
	reason   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(run_id, entity_type);
CREATE INDEX IF NOT EXISTS idx_party_map_entity ON party_map(run_id, entity_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), cause.Error(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, summary, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LatestCompleteRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE status = ? ORDER BY created_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: latest run")
	}
	return id, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, result *model.ResolutionResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	for i := range result.Entities {
		e := &result.Entities[i]
		data, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal entity %s", e.EntityID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entities (run_id, entity_id, entity_type, pep_flag, confidence, risk_score, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, e.EntityID, string(e.Type), boolToInt(e.PEPFlag), e.Confidence, e.RiskScore, string(data),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert entity %s", e.EntityID)
		}
	}

	for partyID, entityID := range result.Mapping {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO party_map (run_id, party_id, entity_id) VALUES (?, ?, ?)`,
			runID, partyID, entityID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert mapping %s", partyID)
		}
	}

	for _, ex := range result.Exclusions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO exclusions (run_id, party_id, source, reason) VALUES (?, ?, ?, ?)`,
			runID, ex.PartyID, string(ex.Source), ex.Reason,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert exclusion")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit result")
}

func (s *SQLiteStore) ListEntities(ctx context.Context, runID string, limit, offset int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM entities WHERE run_id = ? ORDER BY entity_id LIMIT ? OFFSET ?`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list entities for run %s", runID)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		var e model.Entity
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) GetEntity(ctx context.Context, runID, entityID string) (*model.Entity, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM entities WHERE run_id = ? AND entity_id = ?`,
		runID, entityID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", entityID)
	}
	var e model.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entity")
	}
	return &e, nil
}

func (s *SQLiteStore) GetEntityByParty(ctx context.Context, runID, partyID string) (*model.Entity, error) {
	var entityID string
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_id FROM party_map WHERE run_id = ? AND party_id = ?`,
		runID, partyID,
	).Scan(&entityID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lookup party %s", partyID)
	}
	return s.GetEntity(ctx, runID, entityID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var r model.Run
	var summaryJSON, errMsg sql.NullString
	err := row.Scan(&r.ID, &r.Status, &summaryJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var sum model.RunSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &sum); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal summary")
		}
		r.Summary = &sum
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: %s %s", kind, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
