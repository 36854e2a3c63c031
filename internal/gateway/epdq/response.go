package epdq

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
)

// ePDQ STATUS values seen in direct responses.
const (
	statusInvalid             = "0"
	statusRefused             = "2"
	statusAuthorised          = "5"
	statusAuthorisedCancelled = "6"
	statusDeletionWaiting     = "61"
	statusRefund              = "8"
	statusRefundPending       = "81"
	statusPaymentRequested    = "9"
	statusPaymentProcessing   = "91"
	statusWaitingExternal     = "50"
	statusWaiting             = "51"
	statusWaitingIdentify     = "46"
)

const noError = "0"

// ncResponse is the XML document returned by every direct ePDQ endpoint.
type ncResponse struct {
	XMLName     xml.Name `xml:"ncresponse"`
	OrderID     string   `xml:"orderID,attr"`
	PayID       string   `xml:"PAYID,attr"`
	PayIDSub    string   `xml:"PAYIDSUB,attr"`
	NCStatus    string   `xml:"NCSTATUS,attr"`
	NCError     string   `xml:"NCERROR,attr"`
	NCErrorPlus string   `xml:"NCERRORPLUS,attr"`
	Acceptance  string   `xml:"ACCEPTANCE,attr"`
	Status      string   `xml:"STATUS,attr"`
	HTMLAnswer  string   `xml:"HTML_ANSWER"`
}

func parseResponse(body []byte) (*ncResponse, error) {
	var r ncResponse
	if err := xml.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode ncresponse: %w", err)
	}
	return &r, nil
}

func (r *ncResponse) hasError() bool {
	return r.NCError != "" && r.NCError != noError
}

// reference is the composite id ePDQ uses for maintenance operations.
func (r *ncResponse) reference() string {
	return r.PayID + "/" + r.PayIDSub
}

// htmlOut decodes the base64 3DS page ePDQ asks the payer's browser to render.
func (r *ncResponse) htmlOut() (string, error) {
	if r.HTMLAnswer == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(r.HTMLAnswer), ""))
	if err != nil {
		return "", fmt.Errorf("decode HTML_ANSWER: %w", err)
	}
	return string(decoded), nil
}
