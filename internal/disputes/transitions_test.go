package disputes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

func TestDisputeTransitions(t *testing.T) {
	assert.True(t, CanTransitionTo(enums.DisputeStatusOpen, enums.DisputeStatusUnderReview))
	assert.True(t, CanTransitionTo(enums.DisputeStatusSellerResponded, enums.DisputeStatusEscalated))
	assert.True(t, CanTransitionTo(enums.DisputeStatusResolved, enums.DisputeStatusClosed))

	assert.False(t, CanTransitionTo(enums.DisputeStatusClosed, enums.DisputeStatusEscalated))
	assert.False(t, CanTransitionTo(enums.DisputeStatusRejected, enums.DisputeStatusOpen))
	assert.False(t, CanTransitionTo(enums.DisputeStatusOpen, enums.DisputeStatusClosed))
	assert.False(t, CanTransitionTo(enums.DisputeStatusEscalated, enums.DisputeStatusSellerResponded))
	assert.Empty(t, AllowedTransitions(enums.DisputeStatusClosed))
}
