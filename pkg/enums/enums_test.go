package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("pending_confirmation")
	if err != nil || got != OrderStatusPendingConfirmation {
		t.Fatalf("expected pending_confirmation, got %q err=%v", got, err)
	}
	if _, err := ParseOrderStatus("teleported"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestDisputeStatusIsActive(t *testing.T) {
	active := map[DisputeStatus]bool{
		DisputeStatusOpen:            true,
		DisputeStatusUnderReview:     true,
		DisputeStatusSellerResponded: true,
		DisputeStatusEscalated:       true,
		DisputeStatusResolved:        false,
		DisputeStatusRejected:        false,
		DisputeStatusClosed:          false,
	}
	for status, want := range active {
		if got := status.IsActive(); got != want {
			t.Fatalf("status %s: expected active=%v got %v", status, want, got)
		}
	}
}

func TestPayoutStatusIsTerminal(t *testing.T) {
	if !PayoutStatusSettled.IsTerminal() || !PayoutStatusFailed.IsTerminal() {
		t.Fatal("settled and failed are terminal")
	}
	if PayoutStatusOnHold.IsTerminal() {
		t.Fatal("on_hold is not terminal")
	}
}

func TestOutboxDestinationParsing(t *testing.T) {
	for _, raw := range []string{"webhook", "email", "sms", "payment_gateway", "analytics", "notification"} {
		if _, err := ParseOutboxDestination(raw); err != nil {
			t.Fatalf("expected %q to parse: %v", raw, err)
		}
	}
	if _, err := ParseOutboxDestination("pager"); err == nil {
		t.Fatal("expected unknown destination to fail")
	}
}

func TestOrderPaymentStatusIsSettled(t *testing.T) {
	if !OrderPaymentPaid.IsSettled() || !OrderPaymentPaidCash.IsSettled() {
		t.Fatal("paid and paid_cash are settled")
	}
	if OrderPaymentAuthorized.IsSettled() || OrderPaymentPartial.IsSettled() {
		t.Fatal("authorized and partial are not settled")
	}
}
