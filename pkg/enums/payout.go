package enums

// PayoutStatus tracks a seller payout from aggregation to bank settlement.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusOnHold     PayoutStatus = "on_hold"
	PayoutStatusSettled    PayoutStatus = "settled"
	PayoutStatusFailed     PayoutStatus = "failed"
)

func (s PayoutStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no transition leaves this status.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusSettled || s == PayoutStatusFailed
}

// BankAccountVerificationStatus gates payouts to a bank account.
type BankAccountVerificationStatus string

const (
	BankAccountPending  BankAccountVerificationStatus = "pending"
	BankAccountApproved BankAccountVerificationStatus = "approved"
	BankAccountRejected BankAccountVerificationStatus = "rejected"
)
