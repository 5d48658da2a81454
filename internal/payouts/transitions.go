package payouts

import "github.com/angelmondragon/marketsettle-backend/pkg/enums"

var transitions = map[enums.PayoutStatus][]enums.PayoutStatus{
	enums.PayoutStatusPending:    {enums.PayoutStatusProcessing, enums.PayoutStatusOnHold, enums.PayoutStatusFailed},
	enums.PayoutStatusProcessing: {enums.PayoutStatusSettled, enums.PayoutStatusFailed, enums.PayoutStatusOnHold},
	enums.PayoutStatusOnHold:     {enums.PayoutStatusProcessing, enums.PayoutStatusFailed},
}

// CanTransitionTo reports whether a payout may move from one status to another.
func CanTransitionTo(from, to enums.PayoutStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func AllowedTransitions(from enums.PayoutStatus) []enums.PayoutStatus {
	out := make([]enums.PayoutStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}
