package domain

import (
	"strings"
	"time"
)

// AuthorisationMode records how the cardholder interacted with the payment.
type AuthorisationMode string

const (
	AuthorisationModeWeb       AuthorisationMode = "WEB"
	AuthorisationModeMOTO      AuthorisationMode = "MOTO"
	AuthorisationModeAPI       AuthorisationMode = "API"
	AuthorisationModeAgreement AuthorisationMode = "AGREEMENT"
)

// Charge is one authorisation-through-settlement payment attempt.
// Status only changes through the state machine in status.go.
type Charge struct {
	ExternalID           string                  `json:"charge_id"`
	Amount               int64                   `json:"amount"`
	Currency             string                  `json:"currency"`
	Description          string                  `json:"description"`
	Reference            string                  `json:"reference"`
	Email                string                  `json:"email,omitempty"`
	Status               ChargeStatus            `json:"status"`
	GatewayAccountID     int64                   `json:"gateway_account_id"`
	PaymentProvider      string                  `json:"payment_provider"`
	GatewayTransactionID string                  `json:"gateway_transaction_id,omitempty"`
	ProviderSessionID    string                  `json:"-"`
	ThreeDS              *ThreeDSRequiredDetails `json:"three_ds,omitempty"`
	AuthorisationMode    AuthorisationMode       `json:"authorisation_mode"`
	AgreementID          string                  `json:"agreement_id,omitempty"`
	PaymentInstrument    *PaymentInstrument      `json:"-"`
	CardDetails          *CardDetails            `json:"card_details,omitempty"`
	CanRetry             bool                    `json:"can_retry"`
	Historic             bool                    `json:"-"`
	Version              int64                   `json:"-"`
	CreatedAt            time.Time               `json:"created_at"`
}

// ThreeDSRequiredDetails carries what the frontend needs to take the payer through
// a 3-D Secure challenge.
type ThreeDSRequiredDetails struct {
	IssuerURL      string `json:"issuer_url,omitempty"`
	PaRequest      string `json:"pa_request,omitempty"`
	HTMLOut        string `json:"html_out,omitempty"`
	AcsURL         string `json:"acs_url,omitempty"`
	ChallengeToken string `json:"challenge_payload,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Version        string `json:"version,omitempty"`
}

// PaymentInstrument is a reusable card credential tied to an agreement.
// RecurringAuthToken holds gateway specific token keys.
type PaymentInstrument struct {
	ExternalID         string            `json:"payment_instrument_id"`
	RecurringAuthToken map[string]string `json:"recurring_auth_token,omitempty"`
	CardDetails        *CardDetails      `json:"card_details,omitempty"`
}

// CardDetails is the masked card summary kept against a charge.
type CardDetails struct {
	CardBrand      string   `json:"card_brand"`
	CardType       string   `json:"card_type,omitempty"`
	FirstDigits    string   `json:"first_digits_card_number,omitempty"`
	LastDigits     string   `json:"last_digits_card_number"`
	CardholderName string   `json:"cardholder_name"`
	ExpiryDate     string   `json:"expiry_date"`
	Corporate      bool     `json:"corporate_card"`
	BillingAddress *Address `json:"billing_address,omitempty"`
}

// Address is a cardholder billing address.
type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	Postcode string `json:"postcode"`
	City     string `json:"city"`
	County   string `json:"county,omitempty"`
	Country  string `json:"country"`
}

// StreetAddress joins the two street lines the way gateways expect them.
func (a Address) StreetAddress() string {
	if strings.TrimSpace(a.Line2) == "" {
		return a.Line1
	}
	return a.Line1 + ", " + a.Line2
}

// Refund is a request to return some or all of a captured charge.
type Refund struct {
	ExternalID           string       `json:"refund_id"`
	ChargeExternalID     string       `json:"charge_id"`
	Amount               int64        `json:"amount"`
	Status               RefundStatus `json:"status"`
	GatewayTransactionID string       `json:"gateway_transaction_id,omitempty"`
	Version              int64        `json:"-"`
	CreatedAt            time.Time    `json:"created_at"`
}

// CredentialsState is the lifecycle state of a credential set.
type CredentialsState string

const (
	CredentialsCreated CredentialsState = "CREATED"
	CredentialsActive  CredentialsState = "ACTIVE"
	CredentialsRetired CredentialsState = "RETIRED"
)

// Credentials is the union of the per-gateway credential fields.
type Credentials struct {
	MerchantID       string `json:"merchant_id,omitempty"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"-"`
	SHAInPassphrase  string `json:"-"`
	SHAOutPassphrase string `json:"-"`
	StripeAccountID  string `json:"stripe_account_id,omitempty"`
}

// GatewayAccountCredentials binds a credential set to a gateway account.
type GatewayAccountCredentials struct {
	ExternalID      string           `json:"external_id"`
	PaymentProvider string           `json:"payment_provider"`
	State           CredentialsState `json:"state"`
	Credentials     Credentials      `json:"credentials"`
}

// GatewayAccount is a merchant's configuration for one gateway. It is read-only to
// the connector core.
type GatewayAccount struct {
	ID                          int64                       `json:"gateway_account_id"`
	PaymentProvider             string                      `json:"payment_provider"`
	Live                        bool                        `json:"live"`
	Requires3DS                 bool                        `json:"requires_3ds"`
	IntegrationVersion3DS       int                         `json:"integration_version_3ds"`
	ExemptionEngineEnabled      bool                        `json:"exemption_engine_enabled"`
	CorporateExemptionsEnabled  bool                        `json:"corporate_exemptions_enabled"`
	SendPayerEmailToGateway     bool                        `json:"send_payer_email_to_gateway"`
	SendPayerIPAddressToGateway bool                        `json:"send_payer_ip_address_to_gateway"`
	SendReferenceToGateway      bool                        `json:"send_reference_to_gateway"`
	Credentials                 []GatewayAccountCredentials `json:"gateway_account_credentials"`
}

// ActiveCredentials returns the credential set currently in use for provider.
func (g *GatewayAccount) ActiveCredentials(provider string) (*GatewayAccountCredentials, bool) {
	for i := range g.Credentials {
		c := &g.Credentials[i]
		if c.State == CredentialsActive && c.PaymentProvider == provider {
			return c, true
		}
	}
	return nil, false
}
