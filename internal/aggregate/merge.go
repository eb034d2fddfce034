package aggregate

import (
	"errors"
	"fmt"

	"sms-dlr-aggregator/internal/domain"
)

// ErrShapeMismatch is returned when a dataset and a new batch were aggregated
// under different dimension key shapes. Reconciling them requires an explicit
// migration (Migrate); it is never done implicitly.
var ErrShapeMismatch = errors.New("dimension key shape mismatch between dataset and batch")

// Merge unions a new batch into an existing dataset and re-aggregates, so
// rows produced by overlapping windows or repeated runs collapse. An empty
// batch returns the dataset unchanged (identity). An empty dataset adopts the
// batch's shape. Differing shapes yield ErrShapeMismatch.
func Merge(existing *domain.Dataset, batch *Batch) (*domain.Dataset, error) {
	if batch.Empty() {
		return existing, nil
	}
	if existing == nil || len(existing.Rows) == 0 {
		return &domain.Dataset{
			Shape: append([]string(nil), batch.Shape...),
			Rows:  Reaggregate(batch.Rows, batch.Shape),
		}, nil
	}
	if !existing.SameShape(batch.Shape) {
		return nil, fmt.Errorf("%w: dataset %v, batch %v", ErrShapeMismatch, existing.Shape, batch.Shape)
	}

	union := make([]*domain.AggregateRow, 0, len(existing.Rows)+len(batch.Rows))
	union = append(union, existing.Rows...)
	union = append(union, batch.Rows...)

	return &domain.Dataset{
		Shape: append([]string(nil), existing.Shape...),
		Rows:  Reaggregate(union, existing.Shape),
	}, nil
}

// Migrate re-aggregates a dataset onto a narrower shape. Every field of shape
// must already be part of the dataset's shape: widening would fabricate blank
// key values that did not exist when the rows were first aggregated.
func Migrate(ds *domain.Dataset, shape []string) (*domain.Dataset, error) {
	have := make(map[string]struct{}, len(ds.Shape))
	for _, f := range ds.Shape {
		have[f] = struct{}{}
	}
	for _, f := range shape {
		if _, ok := have[f]; !ok {
			return nil, fmt.Errorf("cannot migrate onto shape containing %q: field absent from dataset shape %v", f, ds.Shape)
		}
	}
	return &domain.Dataset{
		Shape: append([]string(nil), shape...),
		Rows:  Reaggregate(ds.Rows, shape),
	}, nil
}

// CombineBatches folds per-window batches into one. Batches normally share a
// shape; when the remote schema changed mid-run they are narrowed onto their
// common shape, which is safe within a single run because every row is being
// re-aggregated anyway.
func CombineBatches(batches []*Batch) *Batch {
	var nonEmpty []*Batch
	for _, b := range batches {
		if !b.Empty() {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return &Batch{}
	}

	shape := nonEmpty[0].Shape
	for _, b := range nonEmpty[1:] {
		shape = CommonShape(shape, b.Shape)
	}

	var union []*domain.AggregateRow
	for _, b := range nonEmpty {
		union = append(union, b.Rows...)
	}
	return &Batch{Shape: shape, Rows: Reaggregate(union, shape)}
}
