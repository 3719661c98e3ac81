package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store uses, narrowed so tests
// can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS import_runs (
	id          TEXT PRIMARY KEY,
	entity      TEXT NOT NULL,
	file        TEXT NOT NULL,
	total       INTEGER NOT NULL,
	to_create   INTEGER NOT NULL,
	to_update   INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	created     INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_import_runs_entity ON import_runs(entity);
CREATE INDEX IF NOT EXISTS idx_import_runs_started_at ON import_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, entity, file, total, to_create, to_update, skipped, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Entity, run.File, run.Total, run.ToCreate, run.ToUpdate, run.Skipped,
		string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, out Outcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_runs SET created = $1, updated = $2, failed = $3, status = $4, finished_at = $5 WHERE id = $6`,
		out.Created, out.Updated, out.Failed, string(out.Status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity, file, total, to_create, to_update, skipped, created, updated, failed, status, started_at, finished_at
		 FROM import_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished *time.Time
		if err := rows.Scan(&r.ID, &r.Entity, &r.File, &r.Total, &r.ToCreate, &r.ToUpdate,
			&r.Skipped, &r.Created, &r.Updated, &r.Failed, &r.Status, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.FinishedAt = finished
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
