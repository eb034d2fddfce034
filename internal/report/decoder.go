package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/domain"
)

// submitTimeLayouts are the timestamp formats observed in exports.
var submitTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LooksTabular inspects a short leading signature of a payload and reports
// whether it can possibly be a CSV export. Login and error pages come back as
// HTML or JSON with a 200 status, so this cheap check is how the orchestrator
// rejects them without attempting a full parse.
func LooksTabular(payload []byte) bool {
	head := bytes.TrimLeft(payload, " \t\r\n\xef\xbb\xbf")
	if len(head) == 0 {
		return false
	}
	switch head[0] {
	case '<', '{', '[':
		return false
	}
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	return bytes.IndexByte(line, ',') >= 0
}

// Decode parses a CSV export into a record batch. The header row is
// authoritative for which dimension columns the batch carries; rows shorter
// than the header or with unparsable measures fail the whole payload, since a
// truncated export must be treated like any other malformed payload.
//
// An empty-but-valid export (header only, or no bytes at all) decodes to an
// empty batch, not an error.
func Decode(payload []byte) (*domain.RecordBatch, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return &domain.RecordBatch{}, nil
	}
	if !LooksTabular(payload) {
		return nil, ErrBadPayload
	}

	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(rows) == 0 {
		return &domain.RecordBatch{}, nil
	}

	header := rows[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	submitIdx, ok := index[domain.DimSubmitDate]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s column", ErrBadPayload, domain.DimSubmitDate)
	}

	measures := map[string]struct{}{
		domain.MeasureMessageParts:    {},
		domain.MeasureClientCost:      {},
		domain.MeasureTerminationCost: {},
	}
	var dimColumns []string
	for _, name := range header {
		name = strings.TrimSpace(name)
		if _, isMeasure := measures[name]; !isMeasure {
			dimColumns = append(dimColumns, name)
		}
	}

	batch := &domain.RecordBatch{Columns: dimColumns}
	for n, row := range rows[1:] {
		if len(row) < len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d",
				ErrBadPayload, n+2, len(row), len(header))
		}

		submit, err := parseSubmitTime(row[submitIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadPayload, n+2, err)
		}

		rec := &domain.RawRecord{
			SubmitTime: submit,
			Dimensions: make(map[string]string, len(dimColumns)),
		}
		for _, name := range dimColumns {
			rec.Dimensions[name] = strings.TrimSpace(row[index[name]])
		}
		// Grouping is by calendar date, never by the full instant.
		rec.Dimensions[domain.DimSubmitDate] = submit.Format("2006-01-02")

		if rec.MessageParts, err = parseParts(cell(row, index, domain.MeasureMessageParts)); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadPayload, n+2, err)
		}
		if rec.ClientCost, err = parseCost(cell(row, index, domain.MeasureClientCost)); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadPayload, n+2, err)
		}
		if rec.TerminationCost, err = parseCost(cell(row, index, domain.MeasureTerminationCost)); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadPayload, n+2, err)
		}
		rec.ClientCurrency = rec.Dimensions[domain.DimClientCurrency]
		rec.VendorCurrency = rec.Dimensions[domain.DimVendorCurrency]

		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func cell(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseSubmitTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range submitTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable submit time %q", s)
}

func parseParts(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable message parts %q", s)
	}
	return v, nil
}

func parseCost(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparsable cost %q", s)
	}
	return v, nil
}
