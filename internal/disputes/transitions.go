package disputes

import "github.com/angelmondragon/marketsettle-backend/pkg/enums"

var disputeTransitions = map[enums.DisputeStatus][]enums.DisputeStatus{
	enums.DisputeStatusOpen: {
		enums.DisputeStatusUnderReview,
		enums.DisputeStatusSellerResponded,
		enums.DisputeStatusResolved,
		enums.DisputeStatusEscalated,
	},
	enums.DisputeStatusUnderReview: {
		enums.DisputeStatusSellerResponded,
		enums.DisputeStatusResolved,
		enums.DisputeStatusEscalated,
	},
	enums.DisputeStatusSellerResponded: {
		enums.DisputeStatusResolved,
		enums.DisputeStatusEscalated,
		enums.DisputeStatusRejected,
	},
	enums.DisputeStatusEscalated: {
		enums.DisputeStatusResolved,
		enums.DisputeStatusRejected,
	},
	enums.DisputeStatusResolved: {
		enums.DisputeStatusClosed,
	},
}

// CanTransitionTo reports whether the dispute table allows from -> to.
func CanTransitionTo(from, to enums.DisputeStatus) bool {
	for _, next := range disputeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func AllowedTransitions(status enums.DisputeStatus) []enums.DisputeStatus {
	next := disputeTransitions[status]
	out := make([]enums.DisputeStatus, len(next))
	copy(out, next)
	return out
}
