package returns

import "github.com/angelmondragon/marketsettle-backend/pkg/enums"

var transitions = map[enums.ReturnStatus][]enums.ReturnStatus{
	enums.ReturnStatusRequested:       {enums.ReturnStatusApproved, enums.ReturnStatusRejected},
	enums.ReturnStatusApproved:        {enums.ReturnStatusInTransit},
	enums.ReturnStatusInTransit:       {enums.ReturnStatusReceived},
	enums.ReturnStatusReceived:        {enums.ReturnStatusRefundProcessed},
	enums.ReturnStatusRefundProcessed: {enums.ReturnStatusClosed},
}

// CanTransitionTo reports whether a return may move from one status to another.
func CanTransitionTo(from, to enums.ReturnStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// sourceStatus is the single status each target is reachable from.
func sourceStatus(to enums.ReturnStatus) enums.ReturnStatus {
	for from, targets := range transitions {
		for _, candidate := range targets {
			if candidate == to {
				return from
			}
		}
	}
	return ""
}
