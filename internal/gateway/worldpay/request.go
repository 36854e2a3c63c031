package worldpay

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
)

const (
	exponent            = "2"
	tokenScope          = "merchant"
	interactionMOTO     = "MOTO"
	challengeWindowSize = "390x400"
	challengePreference = "noPreference"
	usageFirst          = "FIRST"
	usageUsed           = "USED"
)

// orderFor lays out the submit/order element for the request's variant.
func orderFor(req gateway.AuthorisationRequest) (*order, error) {
	o := &order{
		OrderCode:   req.OrderCode,
		Description: req.Description,
		Amount:      &amount{CurrencyCode: req.Currency, Exponent: exponent, Value: req.Amount},
	}
	if req.Reference != "" {
		o.OrderContent = req.Reference
	}

	details := &paymentDetails{}
	switch {
	case req.Variant.Recurring() && req.Token != nil:
		details.Token = &tokenSSL{TokenScope: tokenScope, CaptureCVC: captureCVC(req.Card), PaymentTokenID: req.Token.PaymentTokenID}
		details.StoredCredentials = &storedCredentials{Usage: usageUsed, CustomerInitiatedReason: string(req.CustomerInitiatedReason)}
	case req.Card != nil:
		details.Card = cardFor(req.Card, req.BillingAddress)
		if req.Variant.Recurring() {
			details.StoredCredentials = &storedCredentials{Usage: usageFirst, CustomerInitiatedReason: string(req.CustomerInitiatedReason)}
		}
	default:
		return nil, gateway.ErrMissingCard
	}

	if req.Variant.ThreeDS() {
		details.Session = &session{ShopperIPAddress: req.PayerIPAddress, ID: req.SessionID}
	}
	o.PaymentDetails = details

	if s := shopperFor(req); s != nil {
		o.Shopper = s
	}

	if req.Variant.Recurring() && req.SaveCredential && req.Token == nil {
		o.CreateToken = &createToken{
			TokenScope:          tokenScope,
			TokenEventReference: req.ChargeExternalID,
			TokenReason:         req.Description,
		}
	}

	if req.Variant == gateway.VariantMOTO {
		o.DynamicInteractionType = &dynamicInteractionType{Type: interactionMOTO}
	}

	if req.Variant.Flex() {
		o.Additional3DSData = &additional3DSData{
			DfReferenceID:       req.DeviceDataCollectionResult,
			ChallengeWindowSize: challengeWindowSize,
			ChallengePreference: challengePreference,
		}
		o.ShopperLanguageCode = req.PreferredLanguage
	}

	if req.Exemption != gateway.ExemptionNone && req.Variant.AcceptsExemption() {
		o.Exemption = &exemption{Type: string(req.Exemption), Placement: gateway.ExemptionPlacementAuthorisation}
	}
	return o, nil
}

func shopperFor(req gateway.AuthorisationRequest) *shopper {
	s := shopper{EmailAddress: req.PayerEmail}
	if req.Variant.Recurring() && req.Token != nil {
		s.AuthenticatedShopperID = req.Token.AuthenticatedShopperID
	}
	if req.Variant.ThreeDS() {
		s.Browser = &browser{AcceptHeader: req.AcceptHeader, UserAgentHeader: req.UserAgentHeader}
	}
	if s == (shopper{}) {
		return nil
	}
	return &s
}

func cardFor(card *gateway.CardData, billing *domain.Address) *cardSSL {
	c := &cardSSL{
		CardNumber:     card.Number,
		ExpiryDate:     expiryDate{Date: date{Month: card.ExpiryMonth, Year: fullYear(card.ExpiryYear)}},
		CardHolderName: card.CardholderName,
		CVC:            card.CVC,
	}
	if billing != nil {
		c.CardAddress = &cardAddress{Address: address{
			Address1:    billing.StreetAddress(),
			PostalCode:  billing.Postcode,
			City:        billing.City,
			State:       billing.County,
			CountryCode: billing.Country,
		}}
	}
	return c
}

func captureCVC(card *gateway.CardData) string {
	if card != nil && card.CVC != "" {
		return "true"
	}
	return ""
}

func fullYear(year string) string {
	if len(year) == 2 {
		return "20" + year
	}
	return year
}

// threeDSResponseOrder completes a 3DS1 (paResponse) or 3DS2 (completed) flow.
func threeDSResponseOrder(req gateway.ThreeDSCompletion, sessionID string) *order {
	info := &info3DSecure{}
	if req.Completed {
		info.CompletedAuthentication = &struct{}{}
	} else {
		info.PaResponse = req.PaResponse
	}
	return &order{
		OrderCode:    req.Operation.TransactionID,
		Info3DSecure: info,
		Session:      &session{ID: sessionID},
	}
}

func captureModification(req gateway.OperationRequest, now time.Time) orderModification {
	return orderModification{
		OrderCode: req.TransactionID,
		Capture: &capture{
			Date: date{
				DayOfMonth: strconv.Itoa(now.Day()),
				Month:      strconv.Itoa(int(now.Month())),
				Year:       strconv.Itoa(now.Year()),
			},
			Amount: amount{CurrencyCode: currency(req.Currency), Exponent: exponent, Value: req.Amount},
		},
	}
}

func cancelModification(req gateway.OperationRequest) orderModification {
	return orderModification{OrderCode: req.TransactionID, Cancel: &struct{}{}}
}

func refundModification(req gateway.RefundRequest) orderModification {
	return orderModification{
		OrderCode: req.Operation.TransactionID,
		Refund: &refundModify{
			Reference: req.RefundExternalID,
			Amount:    amount{CurrencyCode: currency(req.Operation.Currency), Exponent: exponent, Value: req.Amount},
		},
	}
}

func currency(c string) string {
	if c == "" {
		return "GBP"
	}
	return c
}

// marshalEnvelope renders a complete request document including the DTD line.
func marshalEnvelope(ps paymentService) ([]byte, error) {
	ps.Version = serviceVersion
	body, err := xml.Marshal(ps)
	if err != nil {
		return nil, fmt.Errorf("marshal paymentService: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(docType)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes(), nil
}
