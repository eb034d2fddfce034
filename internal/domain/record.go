package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord represents one delivery/billing row decoded from a report payload.
// Dimension columns are schema-flexible: the remote service may add or drop
// columns between exports, so they are carried as an explicit name→value map
// and interpreted against the dimension catalog, never by struct reflection.
type RawRecord struct {
	SubmitTime     time.Time         // message submission instant
	Dimensions     map[string]string // categorical columns present in the payload
	MessageParts   int64             // billed message segments
	ClientCost     decimal.Decimal   // charged cost, in ClientCurrency
	TerminationCost decimal.Decimal  // paid-out cost, in VendorCurrency
	ClientCurrency string            // ISO code of the charged side, may be blank
	VendorCurrency string            // ISO code of the paid-out side, may be blank
}

// NormalizedRecord is a RawRecord plus both costs re-expressed in the
// reference currency. If a side's currency already is the reference unit the
// derived value equals the original exactly.
type NormalizedRecord struct {
	RawRecord
	ClientCostRef      decimal.Decimal
	TerminationCostRef decimal.Decimal
}

// RecordBatch holds the records decoded from one report payload together with
// the dimension columns that payload actually carried. The column list is what
// the aggregation engine intersects with the dimension catalog; an empty batch
// still knows its schema.
type RecordBatch struct {
	Columns []string
	Records []*RawRecord
}

// Empty reports whether the batch contains no records.
func (b *RecordBatch) Empty() bool {
	return b == nil || len(b.Records) == 0
}
