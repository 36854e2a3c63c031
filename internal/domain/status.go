package domain

import "fmt"

// ChargeStatus is the internal lifecycle state of a charge.
type ChargeStatus string

const (
	StatusCreated         ChargeStatus = "CREATED"
	StatusEnteringDetails ChargeStatus = "ENTERING_CARD_DETAILS"

	StatusAuthorisationSubmitted       ChargeStatus = "AUTHORISATION_SUBMITTED"
	StatusAuthorisation3DSRequired     ChargeStatus = "AUTHORISATION_3DS_REQUIRED"
	StatusAuthorisation3DSReady        ChargeStatus = "AUTHORISATION_3DS_READY"
	StatusAuthorisationSuccess         ChargeStatus = "AUTHORISATION_SUCCESS"
	StatusAuthorisationRejected        ChargeStatus = "AUTHORISATION_REJECTED"
	StatusAuthorisationCancelled       ChargeStatus = "AUTHORISATION_CANCELLED"
	StatusAuthorisationError           ChargeStatus = "AUTHORISATION_ERROR"
	StatusAuthorisationTimeout         ChargeStatus = "AUTHORISATION_TIMEOUT"
	StatusAuthorisationUnexpectedError ChargeStatus = "AUTHORISATION_UNEXPECTED_ERROR"
	StatusAuthorisationAborted         ChargeStatus = "AUTHORISATION_ABORTED"

	StatusCaptureApproved      ChargeStatus = "CAPTURE_APPROVED"
	StatusCaptureApprovedRetry ChargeStatus = "CAPTURE_APPROVED_RETRY"
	StatusCaptureReady         ChargeStatus = "CAPTURE_READY"
	StatusCaptureSubmitted     ChargeStatus = "CAPTURE_SUBMITTED"
	StatusCaptureError         ChargeStatus = "CAPTURE_ERROR"
	StatusCaptured             ChargeStatus = "CAPTURED"

	StatusUserCancelReady     ChargeStatus = "USER_CANCEL_READY"
	StatusUserCancelSubmitted ChargeStatus = "USER_CANCEL_SUBMITTED"
	StatusUserCancelError     ChargeStatus = "USER_CANCEL_ERROR"
	StatusUserCancelled       ChargeStatus = "USER_CANCELLED"

	StatusSystemCancelReady     ChargeStatus = "SYSTEM_CANCEL_READY"
	StatusSystemCancelSubmitted ChargeStatus = "SYSTEM_CANCEL_SUBMITTED"
	StatusSystemCancelError     ChargeStatus = "SYSTEM_CANCEL_ERROR"
	StatusSystemCancelled       ChargeStatus = "SYSTEM_CANCELLED"

	StatusExpireCancelReady     ChargeStatus = "EXPIRE_CANCEL_READY"
	StatusExpireCancelSubmitted ChargeStatus = "EXPIRE_CANCEL_SUBMITTED"
	StatusExpireCancelFailed    ChargeStatus = "EXPIRE_CANCEL_FAILED"
	StatusExpired               ChargeStatus = "EXPIRED"
)

// RefundStatus is the lifecycle state of a refund.
type RefundStatus string

const (
	RefundCreated   RefundStatus = "CREATED"
	RefundSubmitted RefundStatus = "REFUND_SUBMITTED"
	RefundRefunded  RefundStatus = "REFUNDED"
	RefundError     RefundStatus = "REFUND_ERROR"
)

// CancelFlow names one of the cancellation flows. Each flow walks
// READY -> SUBMITTED -> success and has its own error state.
type CancelFlow string

const (
	FlowUserCancellation   CancelFlow = "USER_CANCELLATION"
	FlowSystemCancellation CancelFlow = "SYSTEM_CANCELLATION"
	FlowExpire             CancelFlow = "EXPIRE"
)

type flowStates struct {
	ready, submitted, success, failure ChargeStatus
}

var cancelFlows = map[CancelFlow]flowStates{
	FlowUserCancellation:   {StatusUserCancelReady, StatusUserCancelSubmitted, StatusUserCancelled, StatusUserCancelError},
	FlowSystemCancellation: {StatusSystemCancelReady, StatusSystemCancelSubmitted, StatusSystemCancelled, StatusSystemCancelError},
	FlowExpire:             {StatusExpireCancelReady, StatusExpireCancelSubmitted, StatusExpired, StatusExpireCancelFailed},
}

func (f CancelFlow) Ready() ChargeStatus     { return cancelFlows[f].ready }
func (f CancelFlow) Submitted() ChargeStatus { return cancelFlows[f].submitted }
func (f CancelFlow) Success() ChargeStatus   { return cancelFlows[f].success }
func (f CancelFlow) Failure() ChargeStatus   { return cancelFlows[f].failure }

// transitions lists every allowed edge. A status missing from the map has no
// outgoing edges.
var transitions = map[ChargeStatus][]ChargeStatus{
	StatusCreated: {
		StatusEnteringDetails, StatusAuthorisationSubmitted,
		StatusSystemCancelled, StatusUserCancelled, StatusExpired,
	},
	StatusEnteringDetails: {
		StatusAuthorisationSubmitted, StatusAuthorisationAborted,
		StatusSystemCancelled, StatusUserCancelled, StatusExpired,
	},
	StatusAuthorisationSubmitted: {
		StatusAuthorisationSuccess, StatusAuthorisationRejected, StatusAuthorisationError,
		StatusAuthorisationTimeout, StatusAuthorisationUnexpectedError,
		StatusAuthorisation3DSRequired, StatusAuthorisationCancelled,
	},
	StatusAuthorisation3DSRequired: {
		StatusAuthorisation3DSReady, StatusAuthorisationSuccess, StatusAuthorisationRejected,
		StatusUserCancelled, StatusSystemCancelled, StatusExpired,
	},
	StatusAuthorisation3DSReady: {
		StatusAuthorisationSuccess, StatusAuthorisationRejected, StatusAuthorisationError,
		StatusAuthorisationTimeout, StatusAuthorisationUnexpectedError, StatusAuthorisationCancelled,
	},
	StatusAuthorisationSuccess: {
		StatusCaptureApproved, StatusUserCancelReady, StatusSystemCancelReady, StatusExpireCancelReady,
	},
	StatusCaptureApproved: {
		StatusCaptureReady, StatusCaptureSubmitted, StatusCaptured, StatusCaptureError,
	},
	StatusCaptureApprovedRetry: {
		StatusCaptureReady, StatusCaptureSubmitted, StatusCaptured, StatusCaptureError,
	},
	StatusCaptureReady: {
		StatusCaptureSubmitted, StatusCaptured, StatusCaptureApprovedRetry, StatusCaptureError,
	},
	StatusCaptureSubmitted: {StatusCaptured},

	StatusUserCancelReady:       {StatusUserCancelSubmitted, StatusUserCancelled, StatusUserCancelError},
	StatusUserCancelSubmitted:   {StatusUserCancelled, StatusUserCancelError},
	StatusSystemCancelReady:     {StatusSystemCancelSubmitted, StatusSystemCancelled, StatusSystemCancelError},
	StatusSystemCancelSubmitted: {StatusSystemCancelled, StatusSystemCancelError},
	StatusExpireCancelReady:     {StatusExpireCancelSubmitted, StatusExpired, StatusExpireCancelFailed},
	StatusExpireCancelSubmitted: {StatusExpired, StatusExpireCancelFailed},
}

// CanTransitionTo reports whether moving from s to target is a legal edge.
// Staying in the same status is not an edge; callers treat it as a no-op.
func (s ChargeStatus) CanTransitionTo(target ChargeStatus) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ChargeStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsPostCapture reports whether the charge has been sent for settlement.
func (s ChargeStatus) IsPostCapture() bool {
	return s == StatusCaptureSubmitted || s == StatusCaptured
}

// IsAwaitingCapture reports whether a capture attempt may start from s.
func (s ChargeStatus) IsAwaitingCapture() bool {
	return s == StatusCaptureApproved || s == StatusCaptureApprovedRetry
}

// IllegalStateError is returned when an operation is not permitted from the
// charge's current status.
type IllegalStateError struct {
	ChargeID string
	From     ChargeStatus
	To       ChargeStatus
}

func (e *IllegalStateError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("charge %s: operation not permitted in status %s", e.ChargeID, e.From)
	}
	return fmt.Sprintf("charge %s: illegal transition %s -> %s", e.ChargeID, e.From, e.To)
}

// CanTransitionTo validates a transition against the charge's current status.
func (c *Charge) CanTransitionTo(target ChargeStatus) error {
	if !c.Status.CanTransitionTo(target) {
		return &IllegalStateError{ChargeID: c.ExternalID, From: c.Status, To: target}
	}
	return nil
}

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundCreated:   {RefundSubmitted, RefundRefunded, RefundError},
	RefundSubmitted: {RefundRefunded, RefundError},
}

// CanTransitionTo reports whether the refund may move to target.
func (s RefundStatus) CanTransitionTo(target RefundStatus) bool {
	for _, next := range refundTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}
