package worldpay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
)

var testCreds = domain.Credentials{MerchantID: "MERCHANT", Username: "user", Password: "pass"}

type fakeWorldpay struct {
	body   string
	cookie string
	reply  string
}

func (f *fakeWorldpay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != testCreds.Username || pass != testCreds.Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b, _ := io.ReadAll(r.Body)
	f.body = string(b)
	if c, err := r.Cookie(machineCookieName); err == nil {
		f.cookie = c.Value
	}
	http.SetCookie(w, &http.Cookie{Name: machineCookieName, Value: "machine-42"})
	io.WriteString(w, f.reply)
}

func newTestProvider(t *testing.T, fake *fakeWorldpay) *Provider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	p := New(Config{URL: srv.URL, Timeout: time.Second}, zap.NewNop())
	p.now = func() time.Time { return time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) }
	return p
}

func replyDoc(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><paymentService version="1.4" merchantCode="MERCHANT"><reply>` + inner + `</reply></paymentService>`
}

func TestAuthorise_Replies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		check func(t *testing.T, res *gateway.AuthorisationResult)
	}{
		{
			name:  "authorised",
			reply: `<orderStatus orderCode="order-1"><payment><paymentMethod>VISA-SSL</paymentMethod><lastEvent>AUTHORISED</lastEvent></payment></orderStatus>`,
			check: func(t *testing.T, res *gateway.AuthorisationResult) {
				assert.Equal(t, gateway.AuthorisationSuccess, res.Status)
				assert.Equal(t, "AUTHORISED", res.GatewayStatus)
			},
		},
		{
			name: "refused with rejected exemption",
			reply: `<orderStatus orderCode="order-1"><payment><lastEvent>REFUSED</lastEvent><ISO8583ReturnCode code="5" description="REFUSED"/></payment>` +
				`<exemptionResponse result="REJECTED" reason="HIGH_RISK"/></orderStatus>`,
			check: func(t *testing.T, res *gateway.AuthorisationResult) {
				assert.Equal(t, gateway.AuthorisationRejected, res.Status)
				assert.True(t, res.ExemptionRejected)
				assert.Equal(t, "5", res.ErrorCode)
			},
		},
		{
			name:  "refused without exemption",
			reply: `<orderStatus orderCode="order-1"><payment><lastEvent>REFUSED</lastEvent></payment></orderStatus>`,
			check: func(t *testing.T, res *gateway.AuthorisationResult) {
				assert.Equal(t, gateway.AuthorisationRejected, res.Status)
				assert.False(t, res.ExemptionRejected)
			},
		},
		{
			name:  "legacy 3ds required",
			reply: `<orderStatus orderCode="order-1"><requestInfo><request3DSecure><paRequest>pareq</paRequest><issuerURL>https://issuer</issuerURL></request3DSecure></requestInfo></orderStatus>`,
			check: func(t *testing.T, res *gateway.AuthorisationResult) {
				assert.Equal(t, gateway.AuthorisationRequires3DS, res.Status)
				require.NotNil(t, res.ThreeDS)
				assert.Equal(t, "https://issuer", res.ThreeDS.IssuerURL)
				assert.Equal(t, "pareq", res.ThreeDS.PaRequest)
			},
		},
		{
			name: "flex challenge required",
			reply: `<orderStatus orderCode="order-1"><challengeRequired><threeDSChallengeDetails><threeDSVersion>2.1.0</threeDSVersion>` +
				`<transactionId3DS>tx-3ds</transactionId3DS><acsURL>https://acs</acsURL><payload>challenge</payload></threeDSChallengeDetails></challengeRequired></orderStatus>`,
			check: func(t *testing.T, res *gateway.AuthorisationResult) {
				assert.Equal(t, gateway.AuthorisationRequires3DS, res.Status)
				require.NotNil(t, res.ThreeDS)
				assert.Equal(t, "https://acs", res.ThreeDS.AcsURL)
				assert.Equal(t, "challenge", res.ThreeDS.ChallengeToken)
				assert.Equal(t, "tx-3ds", res.ThreeDS.TransactionID)
				assert.Equal(t, "2.1.0", res.ThreeDS.Version)
			},
		},
		{
			name:  "reply error",
			reply: `<error code="5">Invalid merchant</error>`,
			check: func(t *testing.T, res *gateway.AuthorisationResult) {
				assert.Equal(t, gateway.AuthorisationError, res.Status)
				assert.Equal(t, "5", res.ErrorCode)
				assert.Equal(t, "Invalid merchant", res.ErrorMessage)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeWorldpay{reply: replyDoc(tt.reply)}
			res, err := newTestProvider(t, fake).Authorise(context.Background(), testCreds, authRequest(gateway.VariantNonThreeDSOneOff))
			require.NoError(t, err)
			assert.Equal(t, "order-1", res.TransactionID)
			assert.Equal(t, "machine-42", res.ProviderSessionID)
			tt.check(t, res)
		})
	}
}

func TestAuthorise3DS_SendsMachineCookie(t *testing.T) {
	fake := &fakeWorldpay{reply: replyDoc(`<orderStatus orderCode="order-1"><payment><lastEvent>AUTHORISED</lastEvent></payment></orderStatus>`)}
	p := newTestProvider(t, fake)

	res, err := p.Authorise3DS(context.Background(), gateway.ThreeDSCompletion{
		Operation: gateway.OperationRequest{
			ChargeExternalID:  "ch_1",
			TransactionID:     "order-1",
			ProviderSessionID: "machine-1",
			Credentials:       testCreds,
		},
		PaResponse: "pares",
	})
	require.NoError(t, err)

	assert.Equal(t, gateway.AuthorisationSuccess, res.Status)
	assert.Equal(t, "machine-1", fake.cookie)
	assert.Contains(t, fake.body, "<paResponse>pares</paResponse>")
}

func TestModify(t *testing.T) {
	op := gateway.OperationRequest{TransactionID: "order-1", Amount: 500, Currency: "GBP", Credentials: testCreds}

	t.Run("capture", func(t *testing.T) {
		fake := &fakeWorldpay{reply: replyDoc(`<ok><captureReceived orderCode="order-1"/></ok>`)}
		res, err := newTestProvider(t, fake).Capture(context.Background(), op)
		require.NoError(t, err)
		assert.Equal(t, "order-1", res.Reference)
		assert.Contains(t, fake.body, `<date dayOfMonth="7" month="3" year="2026">`)
	})

	t.Run("cancel", func(t *testing.T) {
		fake := &fakeWorldpay{reply: replyDoc(`<ok><cancelReceived orderCode="order-1"/></ok>`)}
		_, err := newTestProvider(t, fake).Cancel(context.Background(), op)
		require.NoError(t, err)
	})

	t.Run("refund uses our reference", func(t *testing.T) {
		fake := &fakeWorldpay{reply: replyDoc(`<ok><refundReceived orderCode="order-1"/></ok>`)}
		res, err := newTestProvider(t, fake).Refund(context.Background(), gateway.RefundRequest{Operation: op, RefundExternalID: "rf_1", Amount: 200})
		require.NoError(t, err)
		assert.Equal(t, "rf_1", res.Reference)
	})

	t.Run("error reply", func(t *testing.T) {
		fake := &fakeWorldpay{reply: replyDoc(`<error code="5">Order not found</error>`)}
		_, err := newTestProvider(t, fake).Capture(context.Background(), op)
		var gwErr *gateway.Error
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, gateway.KindClientError, gwErr.Kind)
		assert.Equal(t, "Order not found", gwErr.Message)
	})

	t.Run("missing acknowledgement", func(t *testing.T) {
		fake := &fakeWorldpay{reply: replyDoc(`<ok/>`)}
		_, err := newTestProvider(t, fake).Cancel(context.Background(), op)
		assert.True(t, gateway.IsKind(err, gateway.KindParse))
	})

	t.Run("no reply element", func(t *testing.T) {
		fake := &fakeWorldpay{reply: `<paymentService version="1.4"/>`}
		_, err := newTestProvider(t, fake).Cancel(context.Background(), op)
		assert.True(t, gateway.IsKind(err, gateway.KindParse))
	})
}
