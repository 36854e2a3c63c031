package gateway

import (
	"errors"
	"strings"

	"golang.org/x/text/language"

	"github.com/punchamoorthee/payconnector/internal/domain"
)

var (
	ErrMissingCharge    = errors.New("authorisation has no charge")
	ErrMissingCard      = errors.New("authorisation has no card details")
	ErrMissingOrderCode = errors.New("authorisation has no order code")
	ErrMissingToken     = errors.New("recurring authorisation has no payment instrument token")
)

// Token keys stored on a payment instrument's recurring auth token.
const (
	TokenKeyPaymentTokenID  = "paymentTokenId"
	TokenKeyShopperID       = "authenticatedShopperId"
	TokenKeyEventReference  = "tokenEventReference"
	TokenKeyCustomerID      = "customerId"
	TokenKeyPaymentMethodID = "paymentMethodId"
)

// Select picks the request variant for auth against account and fills it in.
// The first matching rule wins: MOTO, then recurring against an agreement, then
// one-off; within each, Flex before legacy 3DS before no 3DS.
func Select(auth NormalisedAuthorisation, account *domain.GatewayAccount) (AuthorisationRequest, error) {
	if auth.Charge == nil {
		return AuthorisationRequest{}, ErrMissingCharge
	}
	if auth.OrderCode == "" {
		return AuthorisationRequest{}, ErrMissingOrderCode
	}
	charge := auth.Charge

	req := AuthorisationRequest{
		OrderCode:        auth.OrderCode,
		SessionID:        auth.SessionID,
		ChargeExternalID: charge.ExternalID,
		Description:      charge.Description,
		Amount:           charge.Amount,
		Currency:         currencyOrDefault(charge.Currency),
		AcceptHeader:     auth.AcceptHeader,
		UserAgentHeader:  auth.UserAgentHeader,
	}
	if account.SendReferenceToGateway {
		req.Reference = charge.Reference
	}
	if account.SendPayerEmailToGateway {
		req.PayerEmail = firstNonEmpty(auth.Email, charge.Email)
	}
	if account.SendPayerIPAddressToGateway {
		req.PayerIPAddress = auth.IPAddress
	}

	flex := isFlexEligible(auth, account)
	legacy := account.Requires3DS

	switch {
	case charge.AuthorisationMode == domain.AuthorisationModeMOTO:
		if auth.Card == nil {
			return AuthorisationRequest{}, ErrMissingCard
		}
		req.Variant = VariantMOTO
		req.Card = auth.Card
		req.BillingAddress = auth.Card.Address
		// MOTO payments never carry browser or 3DS data.
		req.AcceptHeader = ""
		req.UserAgentHeader = ""
		return req, nil

	case charge.AgreementID != "":
		// The first payment on an agreement sends the card and asks the gateway
		// to store it; later payments reuse the stored token.
		token := recurringToken(charge)
		if token == nil && (auth.Card == nil || !auth.SaveCredential) {
			return AuthorisationRequest{}, ErrMissingToken
		}
		req.Token = token
		req.CustomerInitiatedReason = reasonOrDefault(auth.CustomerInitiatedReason)
		req.SaveCredential = auth.SaveCredential
		if auth.Card != nil {
			req.Card = auth.Card
			req.BillingAddress = auth.Card.Address
		}
		switch {
		case flex:
			req.Variant = VariantFlexRecurring
			req.DeviceDataCollectionResult = auth.DeviceDataCollectionResult
		case legacy:
			req.Variant = VariantLegacy3DSRecurring
		default:
			req.Variant = VariantNonThreeDSRecurring
		}

	default:
		if auth.Card == nil {
			return AuthorisationRequest{}, ErrMissingCard
		}
		req.Card = auth.Card
		req.BillingAddress = auth.Card.Address
		switch {
		case flex:
			req.Variant = VariantFlexOneOff
			req.DeviceDataCollectionResult = auth.DeviceDataCollectionResult
			if auth.DeviceDataCollectionResult == "" {
				req.PreferredLanguage = PreferredLanguage(auth.AcceptLanguageHeader)
			}
		case legacy:
			req.Variant = VariantLegacy3DSOneOff
		default:
			req.Variant = VariantNonThreeDSOneOff
		}
	}

	if req.Variant.AcceptsExemption() {
		req.Exemption = SelectExemption(account, req.Card)
	}
	return req, nil
}

// SelectExemption decides which SCA exemption, if any, to request.
func SelectExemption(account *domain.GatewayAccount, card *CardData) Exemption {
	if !account.Requires3DS {
		return ExemptionNone
	}
	if account.CorporateExemptionsEnabled && card != nil && card.Corporate {
		return ExemptionCorporate
	}
	if account.ExemptionEngineEnabled {
		return ExemptionOptimised
	}
	return ExemptionNone
}

// PreferredLanguage returns the base language of the highest weighted tag in an
// Accept-Language header, or "" when it cannot be parsed.
func PreferredLanguage(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}
	base, confidence := tags[0].Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

func isFlexEligible(auth NormalisedAuthorisation, account *domain.GatewayAccount) bool {
	if auth.DeviceDataCollectionResult != "" {
		return true
	}
	return account.Requires3DS && account.IntegrationVersion3DS == 2
}

func recurringToken(charge *domain.Charge) *RecurringToken {
	if charge.PaymentInstrument == nil || len(charge.PaymentInstrument.RecurringAuthToken) == 0 {
		return nil
	}
	t := charge.PaymentInstrument.RecurringAuthToken
	return &RecurringToken{
		AuthenticatedShopperID: t[TokenKeyShopperID],
		PaymentTokenID:         t[TokenKeyPaymentTokenID],
		TokenEventReference:    t[TokenKeyEventReference],
		CustomerID:             t[TokenKeyCustomerID],
		PaymentMethodID:        t[TokenKeyPaymentMethodID],
	}
}

func reasonOrDefault(r CustomerInitiatedReason) CustomerInitiatedReason {
	switch r {
	case ReasonRecurring, ReasonInstalment, ReasonUnscheduled:
		return r
	}
	return ReasonUnscheduled
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "GBP"
	}
	return strings.ToUpper(c)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
