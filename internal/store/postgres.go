package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daryltucker/workload-bench/internal/model"
)

// Schema creates the results tables. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS bench_runs (
	run_id       uuid PRIMARY KEY,
	run_label    text NOT NULL,
	status       text NOT NULL,
	metadata     jsonb NOT NULL,
	started_at   timestamptz NOT NULL DEFAULT now(),
	finished_at  timestamptz
);

CREATE TABLE IF NOT EXISTS bench_server_results (
	run_id        uuid NOT NULL REFERENCES bench_runs(run_id) ON DELETE CASCADE,
	server_name   text NOT NULL,
	init_ok       boolean NOT NULL,
	list_ok       boolean NOT NULL,
	ok_valid      integer NOT NULL,
	ok_empty      integer NOT NULL,
	failed        integer NOT NULL,
	result        jsonb NOT NULL,
	updated_at    timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, server_name)
);
`

// Store publishes run documents to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(ctx context.Context, doc *model.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO bench_runs (run_id, run_label, status, metadata)
		VALUES ($1,$2,'running',$3::jsonb)
		ON CONFLICT (run_id) DO UPDATE SET
		  metadata=EXCLUDED.metadata,
		  status='running'
	`, doc.Metadata.RunID, doc.Metadata.RunLabel, string(meta))
	return err
}

// UpsertServerResult stores the latest result tree of one server.
func (s *Store) UpsertServerResult(ctx context.Context, runID string, server *model.ServerRunResult) error {
	row, err := newServerRow(server)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO bench_server_results (run_id, server_name, init_ok, list_ok, ok_valid, ok_empty, failed, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb)
		ON CONFLICT (run_id, server_name) DO UPDATE SET
		  init_ok=EXCLUDED.init_ok,
		  list_ok=EXCLUDED.list_ok,
		  ok_valid=EXCLUDED.ok_valid,
		  ok_empty=EXCLUDED.ok_empty,
		  failed=EXCLUDED.failed,
		  result=EXCLUDED.result,
		  updated_at=now()
	`, runID, row.name, row.initOK, row.listOK, row.okValid, row.okEmpty, row.failed, string(row.result))
	return err
}

// FinishRun marks a run as done with status.
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bench_runs
		SET status=$2, finished_at=now()
		WHERE run_id=$1
	`, runID, status)
	return err
}

// serverRow is the flattened form of a server result.
type serverRow struct {
	name    string
	initOK  bool
	listOK  bool
	okValid int
	okEmpty int
	failed  int
	result  []byte
}

// newServerRow counts workload statuses; anything that is neither ok_valid
// nor ok_empty (partial_valid excepted) counts as failed.
func newServerRow(server *model.ServerRunResult) (serverRow, error) {
	result, err := json.Marshal(server)
	if err != nil {
		return serverRow{}, fmt.Errorf("encode server %s: %w", server.Name, err)
	}
	row := serverRow{name: server.Name, result: result}
	if p := server.SessionInitialize; p != nil {
		row.initOK = p.OK
	}
	if p := server.SessionListTools; p != nil {
		row.listOK = p.OK
	}
	for _, w := range server.Workloads {
		switch w.Status {
		case model.WorkloadOKValid:
			row.okValid++
		case model.WorkloadOKEmpty:
			row.okEmpty++
		case model.WorkloadFail, model.WorkloadFailTimeout:
			row.failed++
		}
	}
	return row, nil
}
