package enums

import "fmt"

// ReturnStatus tracks the physical return of goods after a dispute.
type ReturnStatus string

const (
	ReturnStatusRequested       ReturnStatus = "requested"
	ReturnStatusApproved        ReturnStatus = "approved"
	ReturnStatusRejected        ReturnStatus = "rejected"
	ReturnStatusInTransit       ReturnStatus = "in_transit"
	ReturnStatusReceived        ReturnStatus = "received"
	ReturnStatusRefundProcessed ReturnStatus = "refund_processed"
	ReturnStatusClosed          ReturnStatus = "closed"
)

func (s ReturnStatus) String() string {
	return string(s)
}

// ReturnType describes what the buyer gets back for the returned goods.
type ReturnType string

const (
	ReturnTypeRefund      ReturnType = "refund"
	ReturnTypeReplacement ReturnType = "replacement"
	ReturnTypeExchange    ReturnType = "exchange"
)

var validReturnTypes = []ReturnType{
	ReturnTypeRefund,
	ReturnTypeReplacement,
	ReturnTypeExchange,
}

// ParseReturnType converts raw input into a ReturnType.
func ParseReturnType(value string) (ReturnType, error) {
	for _, candidate := range validReturnTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return type %q", value)
}

// ReturnCondition is the state of goods as received by the seller.
type ReturnCondition string

const (
	ReturnConditionAsExpected   ReturnCondition = "as_expected"
	ReturnConditionDamaged      ReturnCondition = "damaged"
	ReturnConditionMissingParts ReturnCondition = "missing_parts"
	ReturnConditionUsed         ReturnCondition = "used"
)

var validReturnConditions = []ReturnCondition{
	ReturnConditionAsExpected,
	ReturnConditionDamaged,
	ReturnConditionMissingParts,
	ReturnConditionUsed,
}

// ParseReturnCondition converts raw input into a ReturnCondition.
func ParseReturnCondition(value string) (ReturnCondition, error) {
	for _, candidate := range validReturnConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return condition %q", value)
}
