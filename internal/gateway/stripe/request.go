package stripe

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/punchamoorthee/payconnector/internal/gateway"
)

// form builds Stripe's bracketed form encoding.
type form struct {
	values url.Values
}

func newForm() *form { return &form{values: url.Values{}} }

func (f *form) set(name, value string) *form {
	if value != "" {
		f.values.Set(name, value)
	}
	return f
}

func (f *form) encode() []byte { return []byte(f.values.Encode()) }

func paymentMethodForm(card *gateway.CardData, req gateway.AuthorisationRequest) *form {
	f := newForm().
		set("type", "card").
		set("card[number]", card.Number).
		set("card[exp_month]", card.ExpiryMonth).
		set("card[exp_year]", card.ExpiryYear).
		set("card[cvc]", card.CVC).
		set("billing_details[name]", card.CardholderName).
		set("billing_details[email]", req.PayerEmail)
	if a := req.BillingAddress; a != nil {
		f.set("billing_details[address][line1]", a.Line1).
			set("billing_details[address][line2]", a.Line2).
			set("billing_details[address][postal_code]", a.Postcode).
			set("billing_details[address][city]", a.City).
			set("billing_details[address][state]", a.County).
			set("billing_details[address][country]", a.Country)
	}
	return f
}

// paymentIntentForm creates and confirms a manual-capture payment intent.
func paymentIntentForm(req gateway.AuthorisationRequest, paymentMethodID, returnURL string) *form {
	f := newForm().
		set("amount", strconv.FormatInt(req.Amount, 10)).
		set("currency", strings.ToLower(currencyOrDefault(req.Currency))).
		set("description", req.Description).
		set("capture_method", "manual").
		set("confirm", "true").
		set("payment_method", paymentMethodID).
		set("transfer_group", req.ChargeExternalID).
		set("metadata[charge_external_id]", req.ChargeExternalID).
		set("metadata[reference]", req.Reference)

	switch {
	case req.Variant == gateway.VariantMOTO:
		f.set("payment_method_options[card][moto]", "true")
	case req.Variant.Recurring() && req.Token != nil:
		f.set("customer", req.Token.CustomerID).set("off_session", "true")
	case req.Variant.Recurring() && req.SaveCredential:
		f.set("setup_future_usage", "off_session")
	}
	if req.Variant.ThreeDS() {
		f.set("return_url", returnURL).
			set("payment_method_options[card][request_three_d_secure]", "any")
	}
	return f
}

func refundForm(req gateway.RefundRequest) *form {
	return newForm().
		set("payment_intent", req.Operation.TransactionID).
		set("amount", strconv.FormatInt(req.Amount, 10)).
		set("metadata[refund_external_id]", req.RefundExternalID).
		set("metadata[charge_external_id]", req.Operation.ChargeExternalID)
}

func captureForm(req gateway.OperationRequest) *form {
	return newForm().set("amount_to_capture", strconv.FormatInt(req.Amount, 10))
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "GBP"
	}
	return c
}
