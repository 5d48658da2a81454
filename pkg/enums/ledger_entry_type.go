package enums

// LedgerEntryType classifies buyer-side money movements.
type LedgerEntryType string

const (
	LedgerEntryExpense LedgerEntryType = "expense"
	LedgerEntryRefund  LedgerEntryType = "refund"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryExpense,
	LedgerEntryRefund,
}

// IsValid reports whether the value is a known LedgerEntryType.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
