package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/domain"
	"sms-dlr-aggregator/internal/storage"
)

// DatasetStore persists the aggregated dataset in Postgres.
//
// The dataset occupies two tables: dataset_meta holds the current shape
// as a text array, dataset_rows holds one row per group with dimension
// values in a JSONB column and measures as NUMERIC. Save replaces the
// whole dataset inside a single transaction so readers never observe a
// partially written state.
type DatasetStore struct {
	pool *Pool
}

// NewDatasetStore creates a Postgres-backed dataset store.
func NewDatasetStore(pool *Pool) *DatasetStore {
	return &DatasetStore{pool: pool}
}

var _ storage.DatasetStore = (*DatasetStore)(nil)
var _ storage.RunLogStore = (*DatasetStore)(nil)

// Load reads the persisted dataset. Returns storage.ErrNotFound when no
// dataset has been saved yet.
func (s *DatasetStore) Load(ctx context.Context) (*domain.Dataset, error) {
	var shape []string
	err := s.pool.QueryRow(ctx, `SELECT shape FROM dataset_meta WHERE id = 1`).Scan(&shape)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset shape: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT dims,
		       message_parts,
		       client_cost::text,
		       termination_cost::text,
		       client_cost_ref::text,
		       termination_cost_ref::text
		FROM dataset_rows`)
	if err != nil {
		return nil, fmt.Errorf("load dataset rows: %w", err)
	}
	defer rows.Close()

	ds := domain.NewDataset(shape)
	for rows.Next() {
		var (
			dims     map[string]string
			parts    int64
			measures [4]string
		)
		if err := rows.Scan(&dims, &parts, &measures[0], &measures[1], &measures[2], &measures[3]); err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		row := &domain.AggregateRow{Key: dims, MessageParts: parts}
		if row.ClientCost, err = decimal.NewFromString(measures[0]); err != nil {
			return nil, fmt.Errorf("parse client_cost: %w", err)
		}
		if row.TerminationCost, err = decimal.NewFromString(measures[1]); err != nil {
			return nil, fmt.Errorf("parse termination_cost: %w", err)
		}
		if row.ClientCostRef, err = decimal.NewFromString(measures[2]); err != nil {
			return nil, fmt.Errorf("parse client_cost_ref: %w", err)
		}
		if row.TerminationCostRef, err = decimal.NewFromString(measures[3]); err != nil {
			return nil, fmt.Errorf("parse termination_cost_ref: %w", err)
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}

	return ds, nil
}

// Save replaces the persisted dataset with ds.
func (s *DatasetStore) Save(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil {
		return fmt.Errorf("%w: dataset is nil", storage.ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO dataset_meta (id, shape, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET shape = EXCLUDED.shape, updated_at = now()`,
		ds.Shape)
	if err != nil {
		return fmt.Errorf("save dataset shape: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM dataset_rows`); err != nil {
		return fmt.Errorf("clear dataset rows: %w", err)
	}

	batch := &pgx.Batch{}
	for _, row := range ds.Rows {
		batch.Queue(`
			INSERT INTO dataset_rows (dims, message_parts, client_cost, termination_cost, client_cost_ref, termination_cost_ref)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric)`,
			row.Key,
			row.MessageParts,
			row.ClientCost.String(),
			row.TerminationCost.String(),
			row.ClientCostRef.String(),
			row.TerminationCostRef.String())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert dataset rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dataset: %w", err)
	}
	return nil
}

// RecordRun appends one entry to the pipeline run log.
func (s *DatasetStore) RecordRun(ctx context.Context, run *storage.RunRecord) error {
	if run == nil {
		return fmt.Errorf("%w: run record is nil", storage.ErrInvalidInput)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (run_id, started_at, finished_at, windows_attempted, windows_succeeded, windows_empty, windows_skipped, records_fetched, dataset_rows)
		VALUES ($1, to_timestamp($2::double precision / 1000), to_timestamp($3::double precision / 1000), $4, $5, $6, $7, $8, $9)`,
		run.RunID,
		run.StartedAt,
		run.FinishedAt,
		run.WindowsAttempted,
		run.WindowsSucceeded,
		run.WindowsEmpty,
		run.WindowsSkipped,
		run.RecordsFetched,
		run.DatasetRows)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
