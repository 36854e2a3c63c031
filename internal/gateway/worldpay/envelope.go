package worldpay

import "encoding/xml"

const (
	serviceVersion = "1.4"
	docType        = `<!DOCTYPE paymentService PUBLIC "-//WorldPay//DTD WorldPay PaymentService v1//EN" "http://dtd.worldpay.com/paymentService_v1.dtd">`
)

// paymentService is the envelope shared by requests, replies and notifications.
type paymentService struct {
	XMLName      xml.Name `xml:"paymentService"`
	Version      string   `xml:"version,attr"`
	MerchantCode string   `xml:"merchantCode,attr"`
	Submit       *submit  `xml:"submit,omitempty"`
	Modify       *modify  `xml:"modify,omitempty"`
	Reply        *reply   `xml:"reply,omitempty"`
	Notify       *notify  `xml:"notify,omitempty"`
}

type submit struct {
	Order order `xml:"order"`
}

type order struct {
	OrderCode              string                  `xml:"orderCode,attr"`
	ShopperLanguageCode    string                  `xml:"shopperLanguageCode,attr,omitempty"`
	Description            string                  `xml:"description,omitempty"`
	Amount                 *amount                 `xml:"amount,omitempty"`
	OrderContent           string                  `xml:"orderContent,omitempty"`
	PaymentDetails         *paymentDetails         `xml:"paymentDetails,omitempty"`
	Info3DSecure           *info3DSecure           `xml:"info3DSecure,omitempty"`
	Session                *session                `xml:"session,omitempty"`
	Shopper                *shopper                `xml:"shopper,omitempty"`
	CreateToken            *createToken            `xml:"createToken,omitempty"`
	DynamicInteractionType *dynamicInteractionType `xml:"dynamicInteractionType,omitempty"`
	Additional3DSData      *additional3DSData      `xml:"additional3DSData,omitempty"`
	Exemption              *exemption              `xml:"exemption,omitempty"`
}

type amount struct {
	CurrencyCode string `xml:"currencyCode,attr"`
	Exponent     string `xml:"exponent,attr"`
	Value        int64  `xml:"value,attr"`
}

type paymentDetails struct {
	Card              *cardSSL           `xml:"CARD-SSL,omitempty"`
	Token             *tokenSSL          `xml:"TOKEN-SSL,omitempty"`
	StoredCredentials *storedCredentials `xml:"storedCredentials,omitempty"`
	Session           *session           `xml:"session,omitempty"`
	Info3DSecure      *info3DSecure      `xml:"info3DSecure,omitempty"`
}

type cardSSL struct {
	CardNumber     string       `xml:"cardNumber"`
	ExpiryDate     expiryDate   `xml:"expiryDate"`
	CardHolderName string       `xml:"cardHolderName"`
	CVC            string       `xml:"cvc,omitempty"`
	CardAddress    *cardAddress `xml:"cardAddress,omitempty"`
}

type expiryDate struct {
	Date date `xml:"date"`
}

type date struct {
	DayOfMonth string `xml:"dayOfMonth,attr,omitempty"`
	Month      string `xml:"month,attr"`
	Year       string `xml:"year,attr"`
}

type cardAddress struct {
	Address address `xml:"address"`
}

type address struct {
	Address1    string `xml:"address1"`
	PostalCode  string `xml:"postalCode"`
	City        string `xml:"city"`
	State       string `xml:"state,omitempty"`
	CountryCode string `xml:"countryCode"`
}

type tokenSSL struct {
	TokenScope     string `xml:"tokenScope,attr"`
	CaptureCVC     string `xml:"captureCvc,attr,omitempty"`
	PaymentTokenID string `xml:"paymentTokenID"`
}

type storedCredentials struct {
	Usage                   string `xml:"usage,attr"`
	CustomerInitiatedReason string `xml:"customerInitiatedReason,attr,omitempty"`
}

type session struct {
	ShopperIPAddress string `xml:"shopperIPAddress,attr,omitempty"`
	ID               string `xml:"id,attr"`
}

type info3DSecure struct {
	PaResponse              string    `xml:"paResponse,omitempty"`
	CompletedAuthentication *struct{} `xml:"completedAuthentication,omitempty"`
}

type shopper struct {
	EmailAddress           string   `xml:"shopperEmailAddress,omitempty"`
	AuthenticatedShopperID string   `xml:"authenticatedShopperID,omitempty"`
	Browser                *browser `xml:"browser,omitempty"`
}

type browser struct {
	AcceptHeader    string `xml:"acceptHeader"`
	UserAgentHeader string `xml:"userAgentHeader"`
}

type createToken struct {
	TokenScope          string `xml:"tokenScope,attr"`
	TokenEventReference string `xml:"tokenEventReference"`
	TokenReason         string `xml:"tokenReason"`
}

type dynamicInteractionType struct {
	Type string `xml:"type,attr"`
}

type additional3DSData struct {
	DfReferenceID       string `xml:"dfReferenceId,attr,omitempty"`
	ChallengeWindowSize string `xml:"challengeWindowSize,attr"`
	ChallengePreference string `xml:"challengePreference,attr"`
}

type exemption struct {
	Type      string `xml:"type,attr"`
	Placement string `xml:"placement,attr"`
}

type modify struct {
	OrderModification orderModification `xml:"orderModification"`
}

type orderModification struct {
	OrderCode string        `xml:"orderCode,attr"`
	Capture   *capture      `xml:"capture,omitempty"`
	Cancel    *struct{}     `xml:"cancel,omitempty"`
	Refund    *refundModify `xml:"refund,omitempty"`
}

type capture struct {
	Date   date   `xml:"date"`
	Amount amount `xml:"amount"`
}

type refundModify struct {
	Reference string `xml:"reference,attr"`
	Amount    amount `xml:"amount"`
}

type reply struct {
	OrderStatus *orderStatus `xml:"orderStatus"`
	Error       *replyError  `xml:"error"`
	Ok          *ok          `xml:"ok"`
}

type orderStatus struct {
	OrderCode         string             `xml:"orderCode,attr"`
	Payment           *payment           `xml:"payment"`
	RequestInfo       *requestInfo       `xml:"requestInfo"`
	ChallengeRequired *challengeRequired `xml:"challengeRequired"`
	Error             *replyError        `xml:"error"`
	ExemptionResponse *exemptionResponse `xml:"exemptionResponse"`
}

type payment struct {
	PaymentMethod     string             `xml:"paymentMethod"`
	LastEvent         string             `xml:"lastEvent"`
	ISO8583ReturnCode *iso8583ReturnCode `xml:"ISO8583ReturnCode"`
}

type iso8583ReturnCode struct {
	Code        string `xml:"code,attr"`
	Description string `xml:"description,attr"`
}

type requestInfo struct {
	Request3DSecure *request3DSecure `xml:"request3DSecure"`
}

type request3DSecure struct {
	PaRequest string `xml:"paRequest"`
	IssuerURL string `xml:"issuerURL"`
}

type challengeRequired struct {
	Details threeDSChallengeDetails `xml:"threeDSChallengeDetails"`
}

type threeDSChallengeDetails struct {
	ThreeDSVersion   string `xml:"threeDSVersion"`
	TransactionID3DS string `xml:"transactionId3DS"`
	AcsURL           string `xml:"acsURL"`
	Payload          string `xml:"payload"`
}

type exemptionResponse struct {
	Result string `xml:"result,attr"`
	Reason string `xml:"reason,attr"`
}

type replyError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type ok struct {
	CaptureReceived *received `xml:"captureReceived"`
	CancelReceived  *received `xml:"cancelReceived"`
	RefundReceived  *received `xml:"refundReceived"`
}

type received struct {
	OrderCode string `xml:"orderCode,attr"`
}

type notify struct {
	OrderStatusEvent orderStatusEvent `xml:"orderStatusEvent"`
}

type orderStatusEvent struct {
	OrderCode string   `xml:"orderCode,attr"`
	Payment   *payment `xml:"payment"`
	Journal   *journal `xml:"journal"`
}

type journal struct {
	JournalType       string             `xml:"journalType,attr"`
	BookingDate       *bookingDate       `xml:"bookingDate"`
	JournalReferences []journalReference `xml:"journalReference"`
}

type bookingDate struct {
	Date date `xml:"date"`
}

type journalReference struct {
	Type      string `xml:"type,attr"`
	Reference string `xml:"reference,attr"`
}
