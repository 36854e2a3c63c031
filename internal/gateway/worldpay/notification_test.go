package worldpay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

func notifyDoc(event string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<paymentService version="1.4" merchantCode="MERCHANT"><notify>` + event + `</notify></paymentService>`)
}

func TestNotificationParser(t *testing.T) {
	tests := []struct {
		name          string
		event         string
		wantStatus    string
		wantReference string
	}{
		{
			name: "journal type wins",
			event: `<orderStatusEvent orderCode="order-1"><payment><lastEvent>AUTHORISED</lastEvent></payment>` +
				`<journal journalType="CAPTURED"><bookingDate><date dayOfMonth="7" month="3" year="2026"/></bookingDate></journal></orderStatusEvent>`,
			wantStatus: "CAPTURED",
		},
		{
			name:       "last event fallback",
			event:      `<orderStatusEvent orderCode="order-1"><payment><lastEvent>REFUSED</lastEvent></payment></orderStatusEvent>`,
			wantStatus: "REFUSED",
		},
		{
			name: "refund reference",
			event: `<orderStatusEvent orderCode="order-1"><journal journalType="REFUNDED">` +
				`<journalReference type="refund" reference="rf_1"/><journalReference type="capture" reference="cap"/></journal></orderStatusEvent>`,
			wantStatus:    "REFUNDED",
			wantReference: "rf_1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NotificationParser{}.Parse(notifyDoc(tt.event), nil)
			require.NoError(t, err)
			assert.Equal(t, Name, n.Gateway)
			assert.Equal(t, "order-1", n.TransactionID)
			assert.Equal(t, tt.wantStatus, n.StatusCode)
			assert.Equal(t, tt.wantReference, n.Reference)
			assert.True(t, NotificationParser{}.Verify(n, domain.Credentials{}))
		})
	}
}

func TestNotificationParser_Malformed(t *testing.T) {
	for name, payload := range map[string][]byte{
		"not xml":     []byte("garbage"),
		"no notify":   []byte(`<paymentService version="1.4"/>`),
		"no status":   notifyDoc(`<orderStatusEvent orderCode="order-1"></orderStatusEvent>`),
		"no order id": notifyDoc(`<orderStatusEvent><payment><lastEvent>AUTHORISED</lastEvent></payment></orderStatusEvent>`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NotificationParser{}.Parse(payload, nil)
			assert.ErrorIs(t, err, notification.ErrMalformed)
		})
	}
}
