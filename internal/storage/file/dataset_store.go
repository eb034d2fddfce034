// Package file persists the aggregated dataset as a single self-describing
// CSV file, written atomically via a temp file and rename.
package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/domain"
	"sms-dlr-aggregator/internal/storage"
)

// DatasetStore implements storage.DatasetStore on one CSV file. The header
// row records the dimension shape followed by the measure columns, so the
// shape the rows were aggregated under survives across runs.
type DatasetStore struct {
	path string
}

// NewDatasetStore creates a store for the given file path. The file does not
// need to exist yet.
func NewDatasetStore(path string) *DatasetStore {
	return &DatasetStore{path: path}
}

// Compile-time interface check.
var _ storage.DatasetStore = (*DatasetStore)(nil)

// Load reads the full dataset from disk. A missing file is ErrNotFound.
func (s *DatasetStore) Load(_ context.Context) (*domain.Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("open dataset file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}

	header := rows[0]
	measures := make(map[string]struct{})
	for _, m := range domain.MeasureColumns() {
		measures[m] = struct{}{}
	}
	var shape []string
	for _, col := range header {
		if _, isMeasure := measures[col]; !isMeasure {
			shape = append(shape, col)
		}
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	for _, m := range domain.MeasureColumns() {
		if _, ok := index[m]; !ok {
			return nil, fmt.Errorf("dataset file missing measure column %s", m)
		}
	}

	ds := domain.NewDataset(shape)
	for n, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("dataset row %d has %d fields, header has %d", n+2, len(row), len(header))
		}

		key := make(map[string]string, len(shape))
		for _, f := range shape {
			key[f] = row[index[f]]
		}

		parts, err := strconv.ParseInt(row[index[domain.MeasureMessageParts]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: %w", n+2, err)
		}
		ar := &domain.AggregateRow{Key: key, MessageParts: parts}
		if ar.ClientCost, err = decimal.NewFromString(row[index[domain.MeasureClientCost]]); err != nil {
			return nil, fmt.Errorf("dataset row %d: %w", n+2, err)
		}
		if ar.TerminationCost, err = decimal.NewFromString(row[index[domain.MeasureTerminationCost]]); err != nil {
			return nil, fmt.Errorf("dataset row %d: %w", n+2, err)
		}
		if ar.ClientCostRef, err = decimal.NewFromString(row[index[domain.MeasureClientCostRef]]); err != nil {
			return nil, fmt.Errorf("dataset row %d: %w", n+2, err)
		}
		if ar.TerminationCostRef, err = decimal.NewFromString(row[index[domain.MeasureTerminationCostRef]]); err != nil {
			return nil, fmt.Errorf("dataset row %d: %w", n+2, err)
		}
		ds.Rows = append(ds.Rows, ar)
	}
	return ds, nil
}

// Save writes the dataset to a temp file in the same directory and renames it
// over the target, so an interrupted run leaves the prior file intact.
func (s *DatasetStore) Save(_ context.Context, ds *domain.Dataset) error {
	if ds == nil {
		return storage.ErrInvalidInput
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp dataset file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := writeDataset(tmp, ds); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp dataset file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp dataset file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace dataset file: %w", err)
	}
	return nil
}

func writeDataset(f *os.File, ds *domain.Dataset) error {
	w := csv.NewWriter(f)

	header := append(append([]string{}, ds.Shape...), domain.MeasureColumns()...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write dataset header: %w", err)
	}

	for _, r := range ds.Rows {
		row := make([]string, 0, len(header))
		for _, field := range ds.Shape {
			row = append(row, r.Key[field])
		}
		row = append(row,
			strconv.FormatInt(r.MessageParts, 10),
			r.ClientCost.String(),
			r.TerminationCost.String(),
			r.ClientCostRef.String(),
			r.TerminationCostRef.String(),
		)
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write dataset row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush dataset file: %w", err)
	}
	return nil
}
