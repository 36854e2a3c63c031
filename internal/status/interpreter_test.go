package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/punchamoorthee/payconnector/internal/domain"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		gateway string
		code    string
		current domain.ChargeStatus
		want    Outcome
	}{
		{"epdq refused while submitted", "epdq", "2", domain.StatusAuthorisationSubmitted, ChargeOutcome(domain.StatusAuthorisationRejected)},
		{"epdq authorised after 3ds", "epdq", "5", domain.StatusAuthorisation3DSRequired, ChargeOutcome(domain.StatusAuthorisationSuccess)},
		{"epdq cancel in user flow", "epdq", "6", domain.StatusUserCancelSubmitted, ChargeOutcome(domain.StatusUserCancelled)},
		{"epdq cancel in system flow", "epdq", "6", domain.StatusSystemCancelSubmitted, ChargeOutcome(domain.StatusSystemCancelled)},
		{"epdq cancel while created", "epdq", "6", domain.StatusCreated, ChargeOutcome(domain.StatusSystemCancelled)},
		{"epdq cancel while entering details", "epdq", "6", domain.StatusEnteringDetails, ChargeOutcome(domain.StatusSystemCancelled)},
		{"epdq cancel in expiry flow", "epdq", "6", domain.StatusExpireCancelSubmitted, ChargeOutcome(domain.StatusExpired)},
		{"epdq cancel outside any flow", "epdq", "6", domain.StatusCaptured, Unknown},
		{"epdq refund after capture", "epdq", "8", domain.StatusCaptured, RefundOutcome(domain.RefundRefunded)},
		{"epdq refund after capture submitted", "epdq", "7", domain.StatusCaptureSubmitted, RefundOutcome(domain.RefundRefunded)},
		{"epdq refund before capture", "epdq", "8", domain.StatusAuthorisationSuccess, Unknown},
		{"epdq refund refused", "epdq", "83", domain.StatusCaptured, RefundOutcome(domain.RefundError)},
		{"epdq refund declined", "epdq", "73", domain.StatusCaptured, RefundOutcome(domain.RefundError)},
		{"epdq refund rejected by acquirer", "epdq", "94", domain.StatusCaptured, RefundOutcome(domain.RefundError)},
		{"epdq captured", "epdq", "9", domain.StatusCaptureSubmitted, ChargeOutcome(domain.StatusCaptured)},
		{"epdq capture processing", "epdq", "91", domain.StatusCaptureReady, ChargeOutcome(domain.StatusCaptureSubmitted)},
		{"epdq unknown code", "epdq", "41", domain.StatusAuthorisationSubmitted, Unknown},

		{"worldpay authorised", "worldpay", "AUTHORISED", domain.StatusAuthorisation3DSReady, ChargeOutcome(domain.StatusAuthorisationSuccess)},
		{"worldpay captured", "worldpay", "CAPTURED", domain.StatusCaptureSubmitted, ChargeOutcome(domain.StatusCaptured)},
		{"worldpay cancelled in user flow", "worldpay", "CANCELLED", domain.StatusUserCancelSubmitted, ChargeOutcome(domain.StatusUserCancelled)},
		{"worldpay refunded", "worldpay", "REFUNDED", domain.StatusCaptured, RefundOutcome(domain.RefundRefunded)},
		{"worldpay refunded by merchant", "worldpay", "REFUNDED_BY_MERCHANT", domain.StatusCaptured, RefundOutcome(domain.RefundRefunded)},
		{"worldpay refund failed", "worldpay", "REFUND_FAILED", domain.StatusCaptured, RefundOutcome(domain.RefundError)},
		{"worldpay settled is not tracked", "worldpay", "SETTLED", domain.StatusCaptured, Unknown},

		{"stripe capturable", "stripe", "payment_intent.amount_capturable_updated", domain.StatusAuthorisationSubmitted, ChargeOutcome(domain.StatusAuthorisationSuccess)},
		{"stripe succeeded", "stripe", "payment_intent.succeeded", domain.StatusCaptureSubmitted, ChargeOutcome(domain.StatusCaptured)},
		{"stripe canceled in expiry flow", "stripe", "payment_intent.canceled", domain.StatusExpireCancelSubmitted, ChargeOutcome(domain.StatusExpired)},
		{"stripe refund succeeded", "stripe", "charge.refund.updated:succeeded", domain.StatusCaptured, RefundOutcome(domain.RefundRefunded)},
		{"stripe refund failed", "stripe", "charge.refund.updated:failed", domain.StatusCaptured, RefundOutcome(domain.RefundError)},

		{"code of another gateway", "worldpay", "9", domain.StatusCaptureSubmitted, Unknown},
		{"unregistered gateway", "sandbox", "AUTHORISED", domain.StatusAuthorisationSubmitted, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpret(tt.gateway, tt.code, tt.current))
		})
	}
}

func TestInterpret_Deterministic(t *testing.T) {
	states := []domain.ChargeStatus{
		domain.StatusCreated, domain.StatusEnteringDetails, domain.StatusAuthorisationSubmitted,
		domain.StatusAuthorisationSuccess, domain.StatusCaptureSubmitted, domain.StatusCaptured,
		domain.StatusUserCancelSubmitted, domain.StatusSystemCancelSubmitted, domain.StatusExpireCancelSubmitted,
	}
	for _, gateway := range []string{"epdq", "worldpay", "stripe"} {
		codes := Codes(gateway)
		assert.NotEmpty(t, codes, gateway)
		for _, code := range codes {
			for _, current := range states {
				first := Interpret(gateway, code, current)
				assert.Equal(t, first, Interpret(gateway, code, current), "%s %s %s", gateway, code, current)
			}
		}
	}
}

func TestInterpret_OutcomeKinds(t *testing.T) {
	out := Interpret("epdq", "8", domain.StatusCaptured)
	assert.Equal(t, KindRefund, out.Kind)
	assert.Empty(t, out.Charge)

	out = Interpret("epdq", "2", domain.StatusAuthorisationSubmitted)
	assert.Equal(t, KindCharge, out.Kind)
	assert.Empty(t, out.Refund)

	assert.Equal(t, "unknown", Interpret("epdq", "x", domain.StatusCreated).Kind.String())
}
