package payouts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to enums.PayoutStatus
		want     bool
	}{
		{enums.PayoutStatusPending, enums.PayoutStatusProcessing, true},
		{enums.PayoutStatusPending, enums.PayoutStatusOnHold, true},
		{enums.PayoutStatusPending, enums.PayoutStatusSettled, false},
		{enums.PayoutStatusProcessing, enums.PayoutStatusSettled, true},
		{enums.PayoutStatusOnHold, enums.PayoutStatusProcessing, true},
		{enums.PayoutStatusOnHold, enums.PayoutStatusSettled, false},
		{enums.PayoutStatusSettled, enums.PayoutStatusFailed, false},
		{enums.PayoutStatusSettled, enums.PayoutStatusOnHold, false},
		{enums.PayoutStatusFailed, enums.PayoutStatusProcessing, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransitionTo(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	for _, status := range []enums.PayoutStatus{enums.PayoutStatusSettled, enums.PayoutStatusFailed} {
		assert.True(t, status.IsTerminal())
		assert.Empty(t, AllowedTransitions(status))
	}
}
