package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
)

const (
	intentRequiresCapture       = "requires_capture"
	intentSucceeded             = "succeeded"
	intentRequiresAction        = "requires_action"
	intentProcessing            = "processing"
	intentCanceled              = "canceled"
	intentRequiresPaymentMethod = "requires_payment_method"

	errorTypeCard = "card_error"
)

type paymentIntent struct {
	ID               string      `json:"id"`
	Status           string      `json:"status"`
	NextAction       *nextAction `json:"next_action"`
	LastPaymentError *apiError   `json:"last_payment_error"`
}

type nextAction struct {
	Type          string `json:"type"`
	RedirectToURL *struct {
		URL string `json:"url"`
	} `json:"redirect_to_url"`
}

type paymentMethod struct {
	ID string `json:"id"`
}

type refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiError struct {
	Type          string `json:"type"`
	Code          string `json:"code"`
	DeclineCode   string `json:"decline_code"`
	Message       string `json:"message"`
	PaymentIntent *struct {
		ID string `json:"id"`
	} `json:"payment_intent"`
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (e *apiError) code() string {
	if e.DeclineCode != "" {
		return e.DeclineCode
	}
	return e.Code
}

// intentResult maps a payment intent onto an authorisation outcome.
func intentResult(pi *paymentIntent) *gateway.AuthorisationResult {
	result := &gateway.AuthorisationResult{TransactionID: pi.ID, GatewayStatus: pi.Status}
	switch pi.Status {
	case intentRequiresCapture, intentSucceeded:
		result.Status = gateway.AuthorisationSuccess
	case intentRequiresAction:
		result.Status = gateway.AuthorisationRequires3DS
		result.ThreeDS = &domain.ThreeDSRequiredDetails{Version: "2.1.0"}
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			result.ThreeDS.IssuerURL = pi.NextAction.RedirectToURL.URL
		}
	case intentProcessing:
		result.Status = gateway.AuthorisationSubmitted
	case intentCanceled:
		result.Status = gateway.AuthorisationCancelled
	case intentRequiresPaymentMethod:
		result.Status = gateway.AuthorisationRejected
	default:
		result.Status = gateway.AuthorisationError
	}
	if e := pi.LastPaymentError; e != nil {
		result.ErrorCode = e.code()
		result.ErrorMessage = e.Message
	}
	return result
}
