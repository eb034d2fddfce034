package report

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/domain"
)

const sampleCSV = `SubmitDate,CompanyName,CountryRealName,DLRStatus,ClientCurrency,VendorCurrency,MessageParts,ClientCost,TerminationCost
2024-01-03 14:22:10,Acme,Spain,DELIVERED,EUR,USD,2,0.0150,0.0090
2024-01-03 14:25:41,Acme,Spain,FAILED,EUR,USD,1,0.0075,0.0045
`

func TestLooksTabular(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    bool
	}{
		{"csv export", sampleCSV, true},
		{"html login page", "<!DOCTYPE html><html><body>Login</body></html>", false},
		{"html with leading space", "  \n<html></html>", false},
		{"json error", `{"error":"session expired"}`, false},
		{"empty", "", false},
		{"plain text without delimiter", "internal server error", false},
	}
	for _, tc := range cases {
		if got := LooksTabular([]byte(tc.payload)); got != tc.want {
			t.Errorf("%s: LooksTabular = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDecode_Records(t *testing.T) {
	batch, err := Decode([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(batch.Records))
	}

	rec := batch.Records[0]
	if rec.Dimensions[domain.DimSubmitDate] != "2024-01-03" {
		t.Errorf("SubmitDate dimension = %q, want calendar date", rec.Dimensions[domain.DimSubmitDate])
	}
	if rec.Dimensions[domain.DimCompanyName] != "Acme" {
		t.Errorf("CompanyName = %q", rec.Dimensions[domain.DimCompanyName])
	}
	if rec.ClientCurrency != "EUR" || rec.VendorCurrency != "USD" {
		t.Errorf("currencies = %q/%q, want EUR/USD", rec.ClientCurrency, rec.VendorCurrency)
	}
	if rec.MessageParts != 2 {
		t.Errorf("MessageParts = %d, want 2", rec.MessageParts)
	}
	if want := decimal.RequireFromString("0.0150"); !rec.ClientCost.Equal(want) {
		t.Errorf("ClientCost = %s, want %s", rec.ClientCost, want)
	}
}

func TestDecode_ColumnsExcludeMeasures(t *testing.T) {
	batch, err := Decode([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for _, c := range batch.Columns {
		switch c {
		case domain.MeasureMessageParts, domain.MeasureClientCost, domain.MeasureTerminationCost:
			t.Errorf("measure column %s leaked into dimension columns", c)
		}
	}
}

func TestDecode_EmptyPayloadIsValid(t *testing.T) {
	for _, payload := range []string{"", "   \n", "SubmitDate,CompanyName,MessageParts,ClientCost,TerminationCost\n"} {
		batch, err := Decode([]byte(payload))
		if err != nil {
			t.Fatalf("Decode(%q) failed: %v", payload, err)
		}
		if !batch.Empty() {
			t.Errorf("Decode(%q) produced %d records, want none", payload, len(batch.Records))
		}
	}
}

func TestDecode_HTMLIsBadPayload(t *testing.T) {
	_, err := Decode([]byte("<html><body>please log in</body></html>"))
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("got %v, want ErrBadPayload", err)
	}
}

func TestDecode_TruncatedRowIsBadPayload(t *testing.T) {
	payload := "SubmitDate,CompanyName,MessageParts,ClientCost,TerminationCost\n2024-01-03 10:00:00,Acme\n"
	_, err := Decode([]byte(payload))
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("got %v, want ErrBadPayload", err)
	}
}
