// Package aggregate groups normalized billing records by a dimension key and
// sums their measures. Merging is re-aggregation over a union, so repeated or
// overlapping batches always collapse to the same rows.
package aggregate

import (
	"sort"

	"sms-dlr-aggregator/internal/domain"
)

// Batch is one aggregation result: rows summed under a single key shape.
type Batch struct {
	Shape []string
	Rows  []*domain.AggregateRow
}

// Empty reports whether the batch carries no rows.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Rows) == 0
}

// EffectiveShape returns the ordered subset of catalog present in columns.
// Catalog order is authoritative; column order in the payload is irrelevant.
func EffectiveShape(catalog, columns []string) []string {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}
	var shape []string
	for _, f := range catalog {
		if _, ok := present[f]; ok {
			shape = append(shape, f)
		}
	}
	return shape
}

// Aggregate groups records by the catalog fields present in columns and sums
// every measure. A dimension value missing on a record groups under the empty
// string; an absent measure contributes zero. Output is sorted by key tuple so
// a fixed input multiset always yields the same sequence.
func Aggregate(records []*domain.NormalizedRecord, catalog, columns []string) *Batch {
	shape := EffectiveShape(catalog, columns)
	batch := &Batch{Shape: shape}
	if len(records) == 0 {
		return batch
	}

	groups := make(map[string]*domain.AggregateRow)
	for _, rec := range records {
		key := make(map[string]string, len(shape))
		for _, f := range shape {
			key[f] = rec.Dimensions[f]
		}
		row := &domain.AggregateRow{Key: key}
		tuple := row.KeyTuple(shape)

		if acc, ok := groups[tuple]; ok {
			addRecord(acc, rec)
		} else {
			addRecord(row, rec)
			groups[tuple] = row
		}
	}

	batch.Rows = sortRows(groups, shape)
	return batch
}

// Reaggregate collapses rows onto shape, which must be a subset of the fields
// the rows were keyed under. Used both for merging overlapping batches and for
// narrowing a dataset during a shape migration.
func Reaggregate(rows []*domain.AggregateRow, shape []string) []*domain.AggregateRow {
	groups := make(map[string]*domain.AggregateRow)
	for _, r := range rows {
		key := make(map[string]string, len(shape))
		for _, f := range shape {
			key[f] = r.Key[f]
		}
		nr := &domain.AggregateRow{Key: key}
		tuple := nr.KeyTuple(shape)

		if acc, ok := groups[tuple]; ok {
			addRow(acc, r)
		} else {
			addRow(nr, r)
			groups[tuple] = nr
		}
	}
	return sortRows(groups, shape)
}

func addRecord(acc *domain.AggregateRow, rec *domain.NormalizedRecord) {
	acc.MessageParts += rec.MessageParts
	acc.ClientCost = acc.ClientCost.Add(rec.ClientCost)
	acc.TerminationCost = acc.TerminationCost.Add(rec.TerminationCost)
	acc.ClientCostRef = acc.ClientCostRef.Add(rec.ClientCostRef)
	acc.TerminationCostRef = acc.TerminationCostRef.Add(rec.TerminationCostRef)
}

func addRow(acc, r *domain.AggregateRow) {
	acc.MessageParts += r.MessageParts
	acc.ClientCost = acc.ClientCost.Add(r.ClientCost)
	acc.TerminationCost = acc.TerminationCost.Add(r.TerminationCost)
	acc.ClientCostRef = acc.ClientCostRef.Add(r.ClientCostRef)
	acc.TerminationCostRef = acc.TerminationCostRef.Add(r.TerminationCostRef)
}

func sortRows(groups map[string]*domain.AggregateRow, shape []string) []*domain.AggregateRow {
	rows := make([]*domain.AggregateRow, 0, len(groups))
	for _, r := range groups {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].KeyTuple(shape) < rows[j].KeyTuple(shape)
	})
	return rows
}

// CommonShape returns the ordered fields present in both shapes. Order follows
// a, which callers keep aligned with the dimension catalog.
func CommonShape(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, f := range b {
		in[f] = struct{}{}
	}
	var out []string
	for _, f := range a {
		if _, ok := in[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
