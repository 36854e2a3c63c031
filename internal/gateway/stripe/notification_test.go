package stripe

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

const testSecret = "whsec_test"

var fixedNow = time.Unix(1760000000, 0)

func signedHeader(secret string, at time.Time, payload []byte) http.Header {
	ts := fmt.Sprint(at.Unix())
	h := http.Header{}
	h.Set(signatureHeader, fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(computeSignature(secret, ts, payload))))
	return h
}

func newParser() *NotificationParser {
	return &NotificationParser{WebhookSecret: testSecret, Now: func() time.Time { return fixedNow }}
}

func TestNotificationParser_Parse(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		wantTx        string
		wantStatus    string
		wantReference string
	}{
		{
			name:       "payment intent event",
			payload:    `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded"}}}`,
			wantTx:     "pi_1",
			wantStatus: "payment_intent.succeeded",
		},
		{
			name:          "refund event",
			payload:       `{"id":"evt_2","type":"charge.refund.updated","data":{"object":{"id":"re_1","object":"refund","status":"succeeded","payment_intent":"pi_1"}}}`,
			wantTx:        "pi_1",
			wantStatus:    "charge.refund.updated:succeeded",
			wantReference: "re_1",
		},
		{
			name:       "charge event",
			payload:    `{"id":"evt_3","type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_1"}}}`,
			wantTx:     "pi_1",
			wantStatus: "charge.succeeded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := newParser().Parse([]byte(tt.payload), http.Header{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTx, n.TransactionID)
			assert.Equal(t, tt.wantStatus, n.StatusCode)
			assert.Equal(t, tt.wantReference, n.Reference)
		})
	}
}

func TestNotificationParser_Malformed(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":          "nope",
		"no type":           `{"data":{"object":{"id":"pi_1","object":"payment_intent"}}}`,
		"no payment intent": `{"id":"evt","type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge"}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newParser().Parse([]byte(payload), http.Header{})
			assert.ErrorIs(t, err, notification.ErrMalformed)
		})
	}
}

func TestNotificationParser_Verify(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

	tests := []struct {
		name   string
		header http.Header
		body   []byte
		want   bool
	}{
		{"valid", signedHeader(testSecret, fixedNow, payload), payload, true},
		{"within tolerance", signedHeader(testSecret, fixedNow.Add(-4*time.Minute), payload), payload, true},
		{"stale", signedHeader(testSecret, fixedNow.Add(-6*time.Minute), payload), payload, false},
		{"wrong secret", signedHeader("whsec_other", fixedNow, payload), payload, false},
		{"tampered body", signedHeader(testSecret, fixedNow, payload), append([]byte(" "), payload...), false},
		{"no header", http.Header{}, payload, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser()
			n, err := p.Parse(tt.body, tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Verify(n, domain.Credentials{}))
		})
	}
}

func TestNotificationParser_VerifyAnyOfSeveralSignatures(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
	valid := signedHeader(testSecret, fixedNow, payload).Get(signatureHeader)
	h := http.Header{}
	h.Set(signatureHeader, valid+",v1=deadbeef")

	p := newParser()
	n, err := p.Parse(payload, h)
	require.NoError(t, err)
	assert.True(t, p.Verify(n, domain.Credentials{}))

	p.WebhookSecret = ""
	assert.False(t, p.Verify(n, domain.Credentials{}))
}
