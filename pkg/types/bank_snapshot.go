package types

// BankSnapshot is copied onto a payout at creation so later edits to the
// seller's bank details never alter historical payouts.
type BankSnapshot struct {
	BankAccountID string `json:"bank_account_id"`
	AccountHolder string `json:"account_holder"`
	BankName      string `json:"bank_name,omitempty"`
	MaskedIBAN    string `json:"masked_iban"`
	Currency      string `json:"currency"`
}
