package epdq

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/signature"
)

// Maintenance operation codes.
const (
	operationAuthorise = "RES"
	operationCapture   = "SAS"
	operationCancel    = "DES"
	operationRefund    = "RFD"
)

const (
	eciMOTO                = "1"
	defaultLanguage        = "en_GB"
	defaultBrowserLanguage = "en-GB"
)

// payload is an ordered, signable set of form fields.
type payload []signature.Param

func (p *payload) add(name, value string) {
	*p = append(*p, signature.Param{Name: name, Value: value})
}

// addIf adds the field only when value is not empty. Empty fields are never
// signed, so omitting them keeps the wire form and the signature aligned.
func (p *payload) addIf(name, value string) {
	if value != "" {
		p.add(name, value)
	}
}

// sign appends SHASIGN computed with the SHA-IN passphrase.
func (p payload) sign(passphrase string) (payload, error) {
	sig, err := signature.Sign(p, passphrase)
	if err != nil {
		return nil, err
	}
	signed := make(payload, len(p), len(p)+1)
	copy(signed, p)
	signed.add("SHASIGN", sig)
	return signed, nil
}

// encode renders the payload as application/x-www-form-urlencoded in field order.
func (p payload) encode() []byte {
	var b strings.Builder
	for i, f := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return []byte(b.String())
}

func (p payload) value(name string) string {
	for _, f := range p {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// returnURLs are the frontend pages a 3DS1 payer comes back to.
type returnURLs struct {
	frontendURL string
}

func (r returnURLs) forCharge(chargeID string) string {
	return fmt.Sprintf("%s/card_details/%s/3ds_required_in/epdq", strings.TrimRight(r.frontendURL, "/"), chargeID)
}

// authorisationPayload lays out a new order for the request's variant. Fields are
// kept in alphabetical order, which is also the order ePDQ signs them in.
func authorisationPayload(req gateway.AuthorisationRequest, creds domain.Credentials, urls returnURLs) (payload, error) {
	if req.Variant.Recurring() {
		return nil, gateway.ErrUnsupportedRequest
	}
	if req.Card == nil {
		return nil, gateway.ErrMissingCard
	}

	threeDS := req.Variant.ThreeDS()
	back := urls.forCharge(req.ChargeExternalID)

	var p payload
	if threeDS {
		p.add("ACCEPTURL", back)
	}
	p.add("AMOUNT", strconv.FormatInt(req.Amount, 10))
	if req.Variant.Flex() {
		p.add("browserAcceptHeader", req.AcceptHeader)
		p.add("browserColorDepth", "24")
		p.add("browserJavaEnabled", "false")
		p.add("browserLanguage", browserLanguage(req.PreferredLanguage))
		p.add("browserScreenHeight", "480")
		p.add("browserScreenWidth", "320")
		p.add("browserTimeZone", "0")
		p.add("browserUserAgent", req.UserAgentHeader)
	}
	if threeDS {
		p.add("CANCELURL", back)
	}
	p.add("CARDNO", req.Card.Number)
	p.add("CN", req.Card.CardholderName)
	p.addIf("COM", req.Description)
	p.add("CURRENCY", req.Currency)
	p.add("CVC", req.Card.CVC)
	if threeDS {
		p.add("DECLINEURL", back)
	}
	if req.Variant == gateway.VariantMOTO {
		p.add("ECI", eciMOTO)
	}
	p.add("ED", expiryDate(req.Card))
	p.addIf("EMAIL", req.PayerEmail)
	if threeDS {
		p.add("EXCEPTIONURL", back)
		p.add("FLAG3D", "Y")
	}
	if req.Variant.Legacy3DS() {
		p.add("HTTP_ACCEPT", req.AcceptHeader)
		p.add("HTTP_USER_AGENT", req.UserAgentHeader)
		p.add("LANGUAGE", defaultLanguage)
	}
	p.add("OPERATION", operationAuthorise)
	p.add("ORDERID", req.OrderCode)
	if req.HasBillingAddress() {
		a := req.BillingAddress
		p.add("OWNERADDRESS", a.StreetAddress())
		p.add("OWNERCTY", a.Country)
		p.add("OWNERTOWN", a.City)
		p.add("OWNERZIP", a.Postcode)
	}
	p.add("PSPID", creds.MerchantID)
	p.add("PSWD", creds.Password)
	p.addIf("REMOTE_ADDR", req.PayerIPAddress)
	p.add("USERID", creds.Username)
	if threeDS {
		p.add("WIN3DS", "MAINW")
	}
	return p, nil
}

// maintenancePayload lays out capture, cancel and refund requests.
func maintenancePayload(operation string, req gateway.OperationRequest, amount int64) payload {
	var p payload
	if operation == operationRefund {
		p.add("AMOUNT", strconv.FormatInt(amount, 10))
	}
	p.add("OPERATION", operation)
	p.add("PAYID", req.TransactionID)
	p.add("PSPID", req.Credentials.MerchantID)
	p.add("PSWD", req.Credentials.Password)
	p.add("USERID", req.Credentials.Username)
	return p
}

// queryPayload asks for the current status of an order.
func queryPayload(req gateway.OperationRequest) payload {
	var p payload
	p.add("PAYID", req.TransactionID)
	p.add("PSPID", req.Credentials.MerchantID)
	p.add("PSWD", req.Credentials.Password)
	p.add("USERID", req.Credentials.Username)
	return p
}

func expiryDate(card *gateway.CardData) string {
	year := card.ExpiryYear
	if len(year) == 4 {
		year = year[2:]
	}
	month := card.ExpiryMonth
	if len(month) == 1 {
		month = "0" + month
	}
	return month + "/" + year
}

func browserLanguage(preferred string) string {
	if preferred == "" {
		return defaultBrowserLanguage
	}
	return preferred
}
