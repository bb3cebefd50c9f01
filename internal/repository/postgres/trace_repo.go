package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// TraceRepo — бэкенд трейс-журнала на PostgreSQL.
// Порядок записей внутри transaction_id обеспечивает BIGSERIAL seq:
// каждый INSERT атомарен, чтение идет строго ORDER BY seq.
//
// Схема:
//
//	CREATE TABLE trace_steps (
//	    seq            BIGSERIAL PRIMARY KEY,
//	    transaction_id TEXT NOT NULL,
//	    record         JSONB NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX trace_steps_txn_idx ON trace_steps (transaction_id, seq);
type TraceRepo struct {
	db *sql.DB
}

func NewTraceRepo(connString string, maxConns int) (*TraceRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("trace_repo: open: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 15
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &TraceRepo{db: db}, nil
}

func (r *TraceRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *TraceRepo) Append(ctx context.Context, transactionID string, record []byte) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO trace_steps (transaction_id, record) VALUES ($1, $2)",
		transactionID, record,
	)
	if err != nil {
		return fmt.Errorf("trace_repo: insert step: %w", err)
	}
	return nil
}

func (r *TraceRepo) ReadAll(ctx context.Context, transactionID string) ([][]byte, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT record FROM trace_steps WHERE transaction_id = $1 ORDER BY seq",
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("trace_repo: select steps: %w", err)
	}
	defer rows.Close()

	var records [][]byte
	for rows.Next() {
		var rec []byte
		if err := rows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("trace_repo: scan step: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trace_repo: iterate steps: %w", err)
	}
	return records, nil
}

func (r *TraceRepo) Close() error {
	return r.db.Close()
}
