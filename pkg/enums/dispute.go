package enums

import "fmt"

// DisputeStatus tracks buyer/seller negotiation after delivery.
type DisputeStatus string

const (
	DisputeStatusOpen            DisputeStatus = "open"
	DisputeStatusUnderReview     DisputeStatus = "under_review"
	DisputeStatusSellerResponded DisputeStatus = "seller_responded"
	DisputeStatusResolved        DisputeStatus = "resolved"
	DisputeStatusEscalated       DisputeStatus = "escalated"
	DisputeStatusRejected        DisputeStatus = "rejected"
	DisputeStatusClosed          DisputeStatus = "closed"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusUnderReview,
	DisputeStatusSellerResponded,
	DisputeStatusResolved,
	DisputeStatusEscalated,
	DisputeStatusRejected,
	DisputeStatusClosed,
}

// ActiveDisputeStatuses are the statuses that block opening another dispute on the same order.
var ActiveDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusUnderReview,
	DisputeStatusSellerResponded,
	DisputeStatusEscalated,
}

func (s DisputeStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DisputeStatus.
func (s DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the dispute still blocks a new one on the same order.
func (s DisputeStatus) IsActive() bool {
	for _, candidate := range ActiveDisputeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// DisputeReason is the buyer's stated cause.
type DisputeReason string

const (
	DisputeReasonNotReceived    DisputeReason = "not_received"
	DisputeReasonNotAsDescribed DisputeReason = "not_as_described"
	DisputeReasonDamaged        DisputeReason = "damaged"
	DisputeReasonWrongItem      DisputeReason = "wrong_item"
	DisputeReasonQuality        DisputeReason = "quality_issue"
	DisputeReasonOther          DisputeReason = "other"
)

var validDisputeReasons = []DisputeReason{
	DisputeReasonNotReceived,
	DisputeReasonNotAsDescribed,
	DisputeReasonDamaged,
	DisputeReasonWrongItem,
	DisputeReasonQuality,
	DisputeReasonOther,
}

// ParseDisputeReason converts raw input into a DisputeReason.
func ParseDisputeReason(value string) (DisputeReason, error) {
	for _, candidate := range validDisputeReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute reason %q", value)
}

// DisputeResolutionType is what the buyer asks for or the seller proposes.
type DisputeResolutionType string

const (
	ResolutionFullRefund      DisputeResolutionType = "full_refund"
	ResolutionPartialRefund   DisputeResolutionType = "partial_refund"
	ResolutionReplacement     DisputeResolutionType = "replacement"
	ResolutionReturnAndRefund DisputeResolutionType = "return_and_refund"
)

var validResolutionTypes = []DisputeResolutionType{
	ResolutionFullRefund,
	ResolutionPartialRefund,
	ResolutionReplacement,
	ResolutionReturnAndRefund,
}

// ParseDisputeResolutionType converts raw input into a DisputeResolutionType.
func ParseDisputeResolutionType(value string) (DisputeResolutionType, error) {
	for _, candidate := range validResolutionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resolution type %q", value)
}

// SellerResponseType is how the seller answers a dispute.
type SellerResponseType string

const (
	SellerResponseProposeResolution    SellerResponseType = "propose_resolution"
	SellerResponseAcceptResponsibility SellerResponseType = "accept_responsibility"
	SellerResponseReject               SellerResponseType = "reject"
)

var validSellerResponseTypes = []SellerResponseType{
	SellerResponseProposeResolution,
	SellerResponseAcceptResponsibility,
	SellerResponseReject,
}

// ParseSellerResponseType converts raw input into a SellerResponseType.
func ParseSellerResponseType(value string) (SellerResponseType, error) {
	for _, candidate := range validSellerResponseTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid seller response type %q", value)
}

// DisputeResolvedBy records which party closed the negotiation.
type DisputeResolvedBy string

const (
	ResolvedBySellerAccepted DisputeResolvedBy = "seller_accepted"
	ResolvedByBuyerAccepted  DisputeResolvedBy = "buyer_accepted"
	ResolvedByAdmin          DisputeResolvedBy = "admin"
)
