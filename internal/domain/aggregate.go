package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AggregateRow is one summed result for a specific dimension key value.
// Key holds a value for every field of the owning dataset's shape; a dimension
// that was present in the schema but blank on a record groups under "".
type AggregateRow struct {
	Key                map[string]string
	MessageParts       int64
	ClientCost         decimal.Decimal
	TerminationCost    decimal.Decimal
	ClientCostRef      decimal.Decimal
	TerminationCostRef decimal.Decimal
}

// KeyTuple returns the row's key values in shape order, joined with a unit
// separator. Used for grouping and deterministic ordering.
func (r *AggregateRow) KeyTuple(shape []string) string {
	vals := make([]string, len(shape))
	for i, f := range shape {
		vals[i] = r.Key[f]
	}
	return strings.Join(vals, "\x1f")
}

// Clone returns a deep copy of the row.
func (r *AggregateRow) Clone() *AggregateRow {
	key := make(map[string]string, len(r.Key))
	for k, v := range r.Key {
		key[k] = v
	}
	c := *r
	c.Key = key
	return &c
}

// Dataset is the durable, ordered sequence of aggregate rows representing the
// full history known so far, together with the dimension key shape its rows
// were aggregated under. Rows aggregated under different shapes must never be
// mixed without re-aggregating onto a common shape first.
type Dataset struct {
	Shape []string
	Rows  []*AggregateRow
}

// NewDataset returns an empty dataset with the given shape.
func NewDataset(shape []string) *Dataset {
	return &Dataset{Shape: append([]string(nil), shape...)}
}

// SameShape reports whether the dataset's shape equals other, field for field
// in order.
func (d *Dataset) SameShape(other []string) bool {
	if len(d.Shape) != len(other) {
		return false
	}
	for i := range d.Shape {
		if d.Shape[i] != other[i] {
			return false
		}
	}
	return true
}
