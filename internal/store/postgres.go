package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/resolver-cli/internal/db"
	"github.com/sells-group/resolver-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, for tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entities (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	entity_id    TEXT NOT NULL,
	entity_type  TEXT NOT NULL,
	pep_flag     BOOLEAN NOT NULL DEFAULT false,
	confidence   DOUBLE PRECISION NOT NULL,
	risk_score   DOUBLE PRECISION NOT NULL,
	data         JSONB NOT NULL,
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

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), cause.Error(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	return scanPgRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LatestCompleteRunID(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM runs WHERE status = $1 ORDER BY created_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: latest run")
	}
	return id, nil
}

// SaveResult bulk-loads entities and the party mapping with COPY inside one
// transaction.
func (s *PostgresStore) SaveResult(ctx context.Context, runID string, result *model.ResolutionResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	entityRows := make([][]any, 0, len(result.Entities))
	for i := range result.Entities {
		e := &result.Entities[i]
		data, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal entity %s", e.EntityID)
		}
		entityRows = append(entityRows, []any{
			runID, e.EntityID, string(e.Type), e.PEPFlag, e.Confidence, e.RiskScore, data,
		})
	}
	_, err = db.CopyFrom(ctx, txPool{tx}, "entities",
		[]string{"run_id", "entity_id", "entity_type", "pep_flag", "confidence", "risk_score", "data"},
		entityRows,
	)
	if err != nil {
		return err
	}

	mapRows := make([][]any, 0, len(result.Mapping))
	for partyID, entityID := range result.Mapping {
		mapRows = append(mapRows, []any{runID, partyID, entityID})
	}
	_, err = db.CopyFrom(ctx, txPool{tx}, "party_map",
		[]string{"run_id", "party_id", "entity_id"},
		mapRows,
	)
	if err != nil {
		return err
	}

	for _, ex := range result.Exclusions {
		_, err = tx.Exec(ctx,
			`INSERT INTO exclusions (run_id, party_id, source, reason) VALUES ($1, $2, $3, $4)`,
			runID, ex.PartyID, string(ex.Source), ex.Reason,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert exclusion")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit result")
}

func (s *PostgresStore) ListEntities(ctx context.Context, runID string, limit, offset int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM entities WHERE run_id = $1 ORDER BY entity_id LIMIT $2 OFFSET $3`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list entities for run %s", runID)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		var e model.Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) GetEntity(ctx context.Context, runID, entityID string) (*model.Entity, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM entities WHERE run_id = $1 AND entity_id = $2`,
		runID, entityID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", entityID)
	}
	var e model.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity")
	}
	return &e, nil
}

func (s *PostgresStore) GetEntityByParty(ctx context.Context, runID, partyID string) (*model.Entity, error) {
	var entityID string
	err := s.pool.QueryRow(ctx,
		`SELECT entity_id FROM party_map WHERE run_id = $1 AND party_id = $2`,
		runID, partyID,
	).Scan(&entityID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lookup party %s", partyID)
	}
	return s.GetEntity(ctx, runID, entityID)
}

// txPool adapts a pgx.Tx to the db.Pool surface needed by COPY helpers.
type txPool struct {
	tx pgx.Tx
}

func (p txPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.tx.Exec(ctx, sql, args...)
}

func (p txPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.tx.Query(ctx, sql, args...)
}

func (p txPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.tx.QueryRow(ctx, sql, args...)
}

func (p txPool) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return p.tx.CopyFrom(ctx, tableName, columnNames, rowSrc)
}

func (p txPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.tx.Begin(ctx)
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var summaryJSON []byte
	var errMsg *string
	err := row.Scan(&r.ID, &r.Status, &summaryJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if len(summaryJSON) > 0 {
		var sum model.RunSummary
		if err := json.Unmarshal(summaryJSON, &sum); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		r.Summary = &sum
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}
