// Package status turns gateway status codes into charge and refund lifecycle
// outcomes.
//
// Every recognised code lives in a single table keyed by gateway and code.
// Each entry carries the state category in which it applies; a code arriving
// outside its category is Unknown.
package status

import "github.com/punchamoorthee/payconnector/internal/domain"

// Kind says what an Outcome moves.
type Kind int

const (
	KindUnknown Kind = iota
	KindCharge
	KindRefund
)

func (k Kind) String() string {
	switch k {
	case KindCharge:
		return "charge"
	case KindRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// Outcome is the result of interpreting one code. Only the field matching Kind
// is set.
type Outcome struct {
	Kind   Kind
	Charge domain.ChargeStatus
	Refund domain.RefundStatus
}

var Unknown = Outcome{}

func ChargeOutcome(s domain.ChargeStatus) Outcome { return Outcome{Kind: KindCharge, Charge: s} }
func RefundOutcome(s domain.RefundStatus) Outcome { return Outcome{Kind: KindRefund, Refund: s} }

// Category restricts the charge states in which a code is meaningful.
type Category int

const (
	// CategoryAny applies regardless of the current state.
	CategoryAny Category = iota
	// CategoryCancellation resolves to the success state of the cancel flow the
	// current state belongs to.
	CategoryCancellation
	// CategoryPostCapture applies only once the charge was sent for capture.
	CategoryPostCapture
)

type key struct {
	gateway string
	code    string
}

type rule struct {
	category Category
	outcome  Outcome
}

func charge(c Category, s domain.ChargeStatus) rule { return rule{c, ChargeOutcome(s)} }
func refund(c Category, s domain.RefundStatus) rule { return rule{c, RefundOutcome(s)} }
func cancellation() rule                            { return rule{category: CategoryCancellation} }

// table is the complete code mapping. Codes not listed are Unknown.
var table = map[key]rule{
	{"epdq", "2"}:  charge(CategoryAny, domain.StatusAuthorisationRejected),
	{"epdq", "5"}:  charge(CategoryAny, domain.StatusAuthorisationSuccess),
	{"epdq", "6"}:  cancellation(),
	{"epdq", "7"}:  refund(CategoryPostCapture, domain.RefundRefunded),
	{"epdq", "8"}:  refund(CategoryPostCapture, domain.RefundRefunded),
	{"epdq", "73"}: refund(CategoryAny, domain.RefundError),
	{"epdq", "83"}: refund(CategoryAny, domain.RefundError),
	{"epdq", "94"}: refund(CategoryAny, domain.RefundError),
	{"epdq", "9"}:  charge(CategoryAny, domain.StatusCaptured),
	{"epdq", "91"}: charge(CategoryAny, domain.StatusCaptureSubmitted),

	{"worldpay", "AUTHORISED"}:           charge(CategoryAny, domain.StatusAuthorisationSuccess),
	{"worldpay", "REFUSED"}:              charge(CategoryAny, domain.StatusAuthorisationRejected),
	{"worldpay", "CANCELLED"}:            cancellation(),
	{"worldpay", "CAPTURED"}:             charge(CategoryAny, domain.StatusCaptured),
	{"worldpay", "REFUNDED"}:             refund(CategoryPostCapture, domain.RefundRefunded),
	{"worldpay", "REFUNDED_BY_MERCHANT"}: refund(CategoryPostCapture, domain.RefundRefunded),
	{"worldpay", "REFUND_FAILED"}:        refund(CategoryAny, domain.RefundError),

	{"stripe", "payment_intent.amount_capturable_updated"}: charge(CategoryAny, domain.StatusAuthorisationSuccess),
	{"stripe", "payment_intent.payment_failed"}:            charge(CategoryAny, domain.StatusAuthorisationRejected),
	{"stripe", "payment_intent.succeeded"}:                 charge(CategoryAny, domain.StatusCaptured),
	{"stripe", "payment_intent.canceled"}:                  cancellation(),
	{"stripe", "charge.refund.updated:succeeded"}:          refund(CategoryPostCapture, domain.RefundRefunded),
	{"stripe", "charge.refund.updated:failed"}:             refund(CategoryAny, domain.RefundError),
	{"stripe", "charge.refund.updated:canceled"}:           refund(CategoryAny, domain.RefundError),
}

// cancelledFrom maps the state a cancellation code arrives in to the success
// state of the implied flow.
var cancelledFrom = map[domain.ChargeStatus]domain.ChargeStatus{
	domain.StatusUserCancelSubmitted:   domain.StatusUserCancelled,
	domain.StatusSystemCancelSubmitted: domain.StatusSystemCancelled,
	domain.StatusCreated:               domain.StatusSystemCancelled,
	domain.StatusEnteringDetails:       domain.StatusSystemCancelled,
	domain.StatusExpireCancelSubmitted: domain.StatusExpired,
}

// Interpret maps a gateway code arriving while the charge is in current to an
// outcome. It is a pure lookup.
func Interpret(gateway, code string, current domain.ChargeStatus) Outcome {
	r, ok := table[key{gateway, code}]
	if !ok {
		return Unknown
	}
	switch r.category {
	case CategoryCancellation:
		if target, ok := cancelledFrom[current]; ok {
			return ChargeOutcome(target)
		}
		return Unknown
	case CategoryPostCapture:
		if !current.IsPostCapture() {
			return Unknown
		}
	}
	return r.outcome
}

// Codes lists the recognised codes for a gateway.
func Codes(gateway string) []string {
	var codes []string
	for k := range table {
		if k.gateway == gateway {
			codes = append(codes, k.code)
		}
	}
	return codes
}
