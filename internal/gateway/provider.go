package gateway

import (
	"context"
	"fmt"
	"sort"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

// AuthorisationStatus is the normalised outcome of an authorisation call.
type AuthorisationStatus int

const (
	AuthorisationSuccess AuthorisationStatus = iota + 1
	AuthorisationRejected
	AuthorisationRequires3DS
	AuthorisationSubmitted
	AuthorisationCancelled
	AuthorisationError
)

// ChargeStatus maps an authorisation outcome onto the charge lifecycle.
func (s AuthorisationStatus) ChargeStatus() domain.ChargeStatus {
	switch s {
	case AuthorisationSuccess:
		return domain.StatusAuthorisationSuccess
	case AuthorisationRejected:
		return domain.StatusAuthorisationRejected
	case AuthorisationRequires3DS:
		return domain.StatusAuthorisation3DSRequired
	case AuthorisationSubmitted:
		return domain.StatusAuthorisationSubmitted
	case AuthorisationCancelled:
		return domain.StatusAuthorisationCancelled
	default:
		return domain.StatusAuthorisationError
	}
}

// AuthorisationResult is what a gateway said about an authorisation.
type AuthorisationResult struct {
	Status            AuthorisationStatus
	TransactionID     string
	ProviderSessionID string
	ThreeDS           *domain.ThreeDSRequiredDetails
	GatewayStatus     string
	ErrorCode         string
	ErrorMessage      string
	// ExemptionRejected is set when the gateway refused the requested exemption
	// and the request may be sent again without it.
	ExemptionRejected bool
}

// CaptureResult reports an accepted capture.
type CaptureResult struct {
	Reference string
	// Complete is true when the gateway settled synchronously.
	Complete bool
}

// CancelResult reports an accepted cancellation.
type CancelResult struct {
	Reference string
	Complete  bool
}

// RefundResult reports an accepted refund. Reference identifies the refund in
// later notifications.
type RefundResult struct {
	Reference string
	Complete  bool
}

// PaymentProvider adapts one gateway's wire protocol to the connector.
// Failures are always returned as *Error.
type PaymentProvider interface {
	Name() string
	// SynchronousCapture reports whether a successful capture call settles the
	// charge, as opposed to waiting for a notification.
	SynchronousCapture() bool
	Authorise(ctx context.Context, creds domain.Credentials, req AuthorisationRequest) (*AuthorisationResult, error)
	Authorise3DS(ctx context.Context, req ThreeDSCompletion) (*AuthorisationResult, error)
	Capture(ctx context.Context, req OperationRequest) (*CaptureResult, error)
	Cancel(ctx context.Context, req OperationRequest) (*CancelResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// NotificationParser reads this gateway's inbound notifications.
	NotificationParser() notification.Parser
}

// Registry looks providers up by gateway name.
type Registry struct {
	providers map[string]PaymentProvider
}

func NewRegistry(providers ...PaymentProvider) *Registry {
	r := &Registry{providers: make(map[string]PaymentProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Provider returns the provider registered for name.
func (r *Registry) Provider(name string) (PaymentProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return p, nil
}

// Parsers returns the notification parser of every registered gateway.
func (r *Registry) Parsers() map[string]notification.Parser {
	parsers := make(map[string]notification.Parser, len(r.providers))
	for name, p := range r.providers {
		parsers[name] = p.NotificationParser()
	}
	return parsers
}

// Names lists registered gateways in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
