// Package postgres persists upload runs and their per-item results for
// later reconciliation. Best-effort audit only; the pipeline never
// depends on it.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/conversion-relay/internal/pipeline"
)

// RunRecord is one completed upload run.
type RunRecord struct {
	ID           string
	AccountID    string
	Mode         string
	ValidateOnly bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Results      []pipeline.ItemResult
}

// UploadRepo stores run records in PostgreSQL.
type UploadRepo struct{ db *sql.DB }

// NewUploadRepo creates a Postgres-backed upload audit repository.
func NewUploadRepo(db *sql.DB) *UploadRepo { return &UploadRepo{db: db} }

// EnsureSchema creates the audit tables if they do not exist yet.
func (r *UploadRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversion_upload_runs (
			id UUID PRIMARY KEY,
			account_id VARCHAR(20),
			mode VARCHAR(30),
			validate_only BOOLEAN DEFAULT FALSE,
			item_count INT DEFAULT 0,
			success_count INT DEFAULT 0,
			started_at TIMESTAMP WITH TIME ZONE,
			finished_at TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversion_upload_results (
			id SERIAL PRIMARY KEY,
			run_id UUID REFERENCES conversion_upload_runs(id),
			item_index INT,
			success BOOLEAN,
			batch INT,
			message TEXT,
			error_kind VARCHAR(30),
			http_code INT,
			api_code VARCHAR(50),
			order_id VARCHAR(100)
		)
	`)
	if err != nil {
		return fmt.Errorf("create results table: %w", err)
	}
	return nil
}

// RecordRun inserts the run and all of its item results in one
// transaction.
func (r *UploadRepo) RecordRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	succeeded := 0
	for _, res := range run.Results {
		if res.Success {
			succeeded++
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversion_upload_runs (id, account_id, mode, validate_only, item_count, success_count, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.AccountID, run.Mode, run.ValidateOnly, len(run.Results), succeeded, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range run.Results {
		orderID := ""
		if res.Conversion != nil {
			orderID = res.Conversion.OrderID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversion_upload_results (run_id, item_index, success, batch, message, error_kind, http_code, api_code, order_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, run.ID, res.Index, res.Success, res.Batch, res.Message, res.ErrorKind, res.HTTPCode, res.APICode, orderID)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", res.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record run: %w", err)
	}
	return nil
}

// RecentRuns lists the latest runs for an account, newest first.
func (r *UploadRepo) RecentRuns(ctx context.Context, accountID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, mode, validate_only, started_at, finished_at
		FROM conversion_upload_runs
		WHERE account_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(&run.ID, &run.AccountID, &run.Mode, &run.ValidateOnly, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
