package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to ChargeStatus
		want     bool
	}{
		{StatusCreated, StatusAuthorisationSubmitted, true},
		{StatusAuthorisationSubmitted, StatusAuthorisationTimeout, true},
		{StatusAuthorisationSuccess, StatusCaptureApproved, true},
		{StatusCaptureApproved, StatusCaptureReady, true},
		{StatusCaptureReady, StatusCaptureApprovedRetry, true},
		{StatusCaptureApprovedRetry, StatusCaptureError, true},
		{StatusCaptureSubmitted, StatusCaptured, true},
		{StatusUserCancelSubmitted, StatusUserCancelled, true},
		{StatusExpireCancelSubmitted, StatusExpireCancelFailed, true},

		{StatusCreated, StatusCaptured, false},
		{StatusCaptured, StatusCaptureSubmitted, false},
		{StatusAuthorisationTimeout, StatusAuthorisationSuccess, false},
		{StatusUserCancelled, StatusUserCancelSubmitted, false},
		{StatusCaptured, StatusCaptured, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestChargeStatus_Terminal(t *testing.T) {
	terminal := []ChargeStatus{
		StatusCaptured, StatusCaptureError, StatusAuthorisationRejected, StatusAuthorisationTimeout,
		StatusAuthorisationError, StatusUserCancelled, StatusSystemCancelled, StatusExpired,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []ChargeStatus{StatusCreated, StatusCaptureApproved, StatusCaptureSubmitted} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestChargeStatus_Categories(t *testing.T) {
	assert.True(t, StatusCaptured.IsPostCapture())
	assert.True(t, StatusCaptureSubmitted.IsPostCapture())
	assert.False(t, StatusCaptureApproved.IsPostCapture())

	assert.True(t, StatusCaptureApproved.IsAwaitingCapture())
	assert.True(t, StatusCaptureApprovedRetry.IsAwaitingCapture())
	assert.False(t, StatusCaptureReady.IsAwaitingCapture())
}

func TestCancelFlows(t *testing.T) {
	for _, f := range []CancelFlow{FlowUserCancellation, FlowSystemCancellation, FlowExpire} {
		t.Run(string(f), func(t *testing.T) {
			assert.True(t, StatusAuthorisationSuccess.CanTransitionTo(f.Ready()))
			assert.True(t, f.Ready().CanTransitionTo(f.Submitted()))
			assert.True(t, f.Submitted().CanTransitionTo(f.Success()))
			assert.True(t, f.Submitted().CanTransitionTo(f.Failure()))
			assert.True(t, f.Success().IsTerminal())
		})
	}
}

func TestCharge_CanTransitionTo(t *testing.T) {
	c := &Charge{ExternalID: "ch_1", Status: StatusCaptured}

	err := c.CanTransitionTo(StatusCaptureReady)
	var illegal *IllegalStateError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, StatusCaptured, illegal.From)
	assert.Equal(t, StatusCaptureReady, illegal.To)
	assert.Equal(t, "charge ch_1: illegal transition CAPTURED -> CAPTURE_READY", err.Error())

	c.Status = StatusCaptureApproved
	assert.NoError(t, c.CanTransitionTo(StatusCaptureReady))
}

func TestRefundStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, RefundCreated.CanTransitionTo(RefundSubmitted))
	assert.True(t, RefundSubmitted.CanTransitionTo(RefundRefunded))
	assert.True(t, RefundSubmitted.CanTransitionTo(RefundError))
	assert.False(t, RefundRefunded.CanTransitionTo(RefundError))
	assert.False(t, RefundError.CanTransitionTo(RefundRefunded))
}

func TestAddress_StreetAddress(t *testing.T) {
	assert.Equal(t, "1 Street", Address{Line1: "1 Street"}.StreetAddress())
	assert.Equal(t, "1 Street, Flat 2", Address{Line1: "1 Street", Line2: "Flat 2"}.StreetAddress())
	assert.Equal(t, "1 Street", Address{Line1: "1 Street", Line2: "  "}.StreetAddress())
}
