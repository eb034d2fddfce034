package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sms-dlr-aggregator/internal/domain"
	"sms-dlr-aggregator/internal/storage"
)

// DatasetStore mirrors the aggregated dataset into ClickHouse for ad-hoc
// analytics. ClickHouse is a write-only sink in the pipeline: the system
// of record stays in Postgres or the CSV file, and Load only serves
// verification queries.
type DatasetStore struct {
	conn *Conn
}

// NewDatasetStore creates a ClickHouse-backed dataset store.
func NewDatasetStore(conn *Conn) *DatasetStore {
	return &DatasetStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DatasetStore = (*DatasetStore)(nil)

// Load reads the mirrored dataset back. Returns storage.ErrNotFound when
// the mirror has never been written.
func (s *DatasetStore) Load(ctx context.Context) (*domain.Dataset, error) {
	var shape []string
	row := s.conn.QueryRow(ctx, `
		SELECT shape FROM dataset_meta ORDER BY updated_at DESC LIMIT 1`)
	if err := row.Scan(&shape); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load dataset shape: %w", err)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT dims, message_parts, client_cost, termination_cost, client_cost_ref, termination_cost_ref
		FROM dataset_rows`)
	if err != nil {
		return nil, fmt.Errorf("load dataset rows: %w", err)
	}
	defer rows.Close()

	ds := domain.NewDataset(shape)
	for rows.Next() {
		r := &domain.AggregateRow{}
		if err := rows.Scan(&r.Key, &r.MessageParts, &r.ClientCost, &r.TerminationCost, &r.ClientCostRef, &r.TerminationCostRef); err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		ds.Rows = append(ds.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}

	return ds, nil
}

// Save replaces the mirrored dataset with ds. ClickHouse has no
// transactions, so a reader racing a Save may briefly observe an empty
// table. Acceptable for an analytics mirror.
func (s *DatasetStore) Save(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil {
		return fmt.Errorf("%w: dataset is nil", storage.ErrInvalidInput)
	}

	if err := s.conn.Exec(ctx, `TRUNCATE TABLE dataset_rows`); err != nil {
		return fmt.Errorf("truncate dataset rows: %w", err)
	}

	if len(ds.Rows) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO dataset_rows (dims, message_parts, client_cost, termination_cost, client_cost_ref, termination_cost_ref)`)
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}
		for _, r := range ds.Rows {
			key := r.Key
			if key == nil {
				key = map[string]string{}
			}
			if err := batch.Append(key, r.MessageParts, r.ClientCost, r.TerminationCost, r.ClientCostRef, r.TerminationCostRef); err != nil {
				return fmt.Errorf("append to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
	}

	if err := s.conn.Exec(ctx, `
		INSERT INTO dataset_meta (id, shape, updated_at) VALUES (1, ?, now64(3))`,
		ds.Shape); err != nil {
		return fmt.Errorf("save dataset shape: %w", err)
	}

	return nil
}
