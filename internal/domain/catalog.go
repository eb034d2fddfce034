package domain

// Dimension column names as exported by the wholesale DLR report.
const (
	DimSubmitDate       = "SubmitDate"
	DimCompanyName      = "CompanyName"
	DimCustomerAccount  = "CustomerSMPPAccount"
	DimVendorAccount    = "VendorAccount"
	DimCountry          = "CountryRealName"
	DimOperator         = "OperatorName"
	DimDLRStatus        = "DLRStatus"
	DimErrorDescription = "ErrorDescription"
	DimClientCurrency   = "ClientCurrency"
	DimVendorCurrency   = "VendorCurrency"
	DimMessageType      = "MessageType"
)

// Measure column names.
const (
	MeasureMessageParts       = "MessageParts"
	MeasureClientCost         = "ClientCost"
	MeasureTerminationCost    = "TerminationCost"
	MeasureClientCostRef      = "ClientCostUSD"
	MeasureTerminationCostRef = "TerminationCostUSD"
)

// DefaultCatalog is the fixed, ordered dimension catalog. Grouping always uses
// the subset of this catalog present in a batch, in this order. The ordering
// must stay identical for every batch merged into one dataset.
func DefaultCatalog() []string {
	return []string{
		DimSubmitDate,
		DimCompanyName,
		DimCustomerAccount,
		DimVendorAccount,
		DimCountry,
		DimOperator,
		DimDLRStatus,
		DimErrorDescription,
		DimClientCurrency,
		DimVendorCurrency,
		DimMessageType,
	}
}

// MeasureColumns returns the measure column names in persisted order.
func MeasureColumns() []string {
	return []string{
		MeasureMessageParts,
		MeasureClientCost,
		MeasureTerminationCost,
		MeasureClientCostRef,
		MeasureTerminationCostRef,
	}
}

// ReferenceCurrency is the unit all costs are normalized into.
const ReferenceCurrency = "USD"
