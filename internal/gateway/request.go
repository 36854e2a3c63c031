package gateway

import "github.com/punchamoorthee/payconnector/internal/domain"

// Variant tags the shape of an authorisation request. Each gateway encodes a
// variant into its own field layout.
type Variant string

const (
	VariantMOTO                Variant = "MOTO"
	VariantFlexRecurring       Variant = "FLEX_RECURRING"
	VariantLegacy3DSRecurring  Variant = "LEGACY_3DS_RECURRING"
	VariantNonThreeDSRecurring Variant = "NON_3DS_RECURRING"
	VariantFlexOneOff          Variant = "FLEX_ONE_OFF"
	VariantLegacy3DSOneOff     Variant = "LEGACY_3DS_ONE_OFF"
	VariantNonThreeDSOneOff    Variant = "NON_3DS_ONE_OFF"
)

// Recurring reports whether the variant charges a stored agreement.
func (v Variant) Recurring() bool {
	switch v {
	case VariantFlexRecurring, VariantLegacy3DSRecurring, VariantNonThreeDSRecurring:
		return true
	}
	return false
}

// Flex reports whether the variant uses 3-D Secure 2.
func (v Variant) Flex() bool {
	return v == VariantFlexRecurring || v == VariantFlexOneOff
}

// Legacy3DS reports whether the variant uses 3-D Secure 1.
func (v Variant) Legacy3DS() bool {
	return v == VariantLegacy3DSRecurring || v == VariantLegacy3DSOneOff
}

// ThreeDS reports whether any 3-D Secure fields belong in the request.
func (v Variant) ThreeDS() bool {
	return v.Flex() || v.Legacy3DS()
}

// AcceptsExemption reports whether an SCA exemption may be attached.
func (v Variant) AcceptsExemption() bool {
	return v == VariantFlexOneOff || v == VariantLegacy3DSOneOff
}

// Exemption is a request to skip strong customer authentication.
type Exemption string

const (
	ExemptionNone      Exemption = ""
	ExemptionOptimised Exemption = "OP"
	ExemptionCorporate Exemption = "CP"
)

// ExemptionPlacement is where the gateway should apply the exemption.
const ExemptionPlacementAuthorisation = "AUTHORISATION"

// CustomerInitiatedReason explains a customer-initiated payment on a stored credential.
type CustomerInitiatedReason string

const (
	ReasonRecurring   CustomerInitiatedReason = "RECURRING"
	ReasonInstalment  CustomerInitiatedReason = "INSTALMENT"
	ReasonUnscheduled CustomerInitiatedReason = "UNSCHEDULED"
)

// CardData is the full card as entered by the payer. It never leaves the
// authorisation path.
type CardData struct {
	Number         string
	CVC            string
	ExpiryMonth    string
	ExpiryYear     string
	CardholderName string
	CardBrand      string
	Corporate      bool
	Address        *domain.Address
}

// RecurringToken identifies the stored credential used by a recurring payment.
type RecurringToken struct {
	AuthenticatedShopperID string
	PaymentTokenID         string
	TokenEventReference    string
	CustomerID             string
	PaymentMethodID        string
}

// NormalisedAuthorisation is the gateway-independent input to Select.
type NormalisedAuthorisation struct {
	Charge                     *domain.Charge
	OrderCode                  string
	SessionID                  string
	Card                       *CardData
	AcceptHeader               string
	UserAgentHeader            string
	AcceptLanguageHeader       string
	IPAddress                  string
	Email                      string
	DeviceDataCollectionResult string
	CustomerInitiatedReason    CustomerInitiatedReason
	SaveCredential             bool
}

// AuthorisationRequest is the selected, fully parametrised request. Treat it as
// immutable; use the With* methods to derive variants.
type AuthorisationRequest struct {
	Variant                    Variant
	OrderCode                  string
	SessionID                  string
	ChargeExternalID           string
	Description                string
	Reference                  string
	Amount                     int64
	Currency                   string
	Card                       *CardData
	Token                      *RecurringToken
	CustomerInitiatedReason    CustomerInitiatedReason
	SaveCredential             bool
	BillingAddress             *domain.Address
	AcceptHeader               string
	UserAgentHeader            string
	PreferredLanguage          string
	DeviceDataCollectionResult string
	PayerEmail                 string
	PayerIPAddress             string
	Exemption                  Exemption
}

// WithoutExemption returns a copy of r with no exemption requested. Used when a
// gateway rejects an exemption and the payment is retried without it.
func (r AuthorisationRequest) WithoutExemption() AuthorisationRequest {
	r.Exemption = ExemptionNone
	return r
}

// HasBillingAddress reports whether an address block should be sent at all.
func (r AuthorisationRequest) HasBillingAddress() bool {
	return r.BillingAddress != nil
}

// ThreeDSCompletion carries the payer's 3-D Secure result back to the gateway.
type ThreeDSCompletion struct {
	Operation  OperationRequest
	PaResponse string
	// Completed is set for 3DS2 flows where the challenge result is held by the gateway.
	Completed bool
}

// OperationRequest identifies an existing gateway order for a follow-up operation.
type OperationRequest struct {
	ChargeExternalID  string
	TransactionID     string
	ProviderSessionID string
	Amount            int64
	Currency          string
	Account           *domain.GatewayAccount
	Credentials       domain.Credentials
}

// RefundRequest asks the gateway to return Amount of a captured charge.
type RefundRequest struct {
	Operation        OperationRequest
	RefundExternalID string
	Amount           int64
}
