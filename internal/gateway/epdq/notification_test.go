package epdq

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/payconnector/internal/notification"
	"github.com/punchamoorthee/payconnector/internal/signature"
)

func signedNotification(t *testing.T, passphrase string, fields ...signature.Param) []byte {
	t.Helper()
	sig, err := signature.Sign(fields, passphrase)
	require.NoError(t, err)
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		parts = append(parts, url.QueryEscape(f.Name)+"="+url.QueryEscape(f.Value))
	}
	parts = append(parts, "SHASIGN="+strings.ToUpper(sig))
	return []byte(strings.Join(parts, "&"))
}

func TestNotificationParser(t *testing.T) {
	payload := signedNotification(t, testCreds.SHAOutPassphrase,
		signature.Param{Name: "orderID", Value: "order-1"},
		signature.Param{Name: "currency", Value: "GBP"},
		signature.Param{Name: "amount", Value: "5"},
		signature.Param{Name: "PM", Value: "CreditCard"},
		signature.Param{Name: "ACCEPTANCE", Value: ""},
		signature.Param{Name: "STATUS", Value: "8"},
		signature.Param{Name: "PAYID", Value: "3014644340"},
		signature.Param{Name: "PAYIDSUB", Value: "2"},
		signature.Param{Name: "NCERROR", Value: "0"},
	)

	n, err := NotificationParser{}.Parse(payload, nil)
	require.NoError(t, err)

	assert.Equal(t, Name, n.Gateway)
	assert.Equal(t, "3014644340", n.TransactionID)
	assert.Equal(t, "3014644340/2", n.Reference)
	assert.Equal(t, "8", n.StatusCode)
	assert.True(t, NotificationParser{}.Verify(n, testCreds))

	wrong := testCreds
	wrong.SHAOutPassphrase = "another-passphrase"
	assert.False(t, NotificationParser{}.Verify(n, wrong))
}

func TestNotificationParser_Tampered(t *testing.T) {
	payload := signedNotification(t, testCreds.SHAOutPassphrase,
		signature.Param{Name: "STATUS", Value: "2"},
		signature.Param{Name: "PAYID", Value: "3014644340"},
	)
	tampered := []byte(strings.Replace(string(payload), "STATUS=2", "STATUS=9", 1))

	n, err := NotificationParser{}.Parse(tampered, nil)
	require.NoError(t, err)
	assert.False(t, NotificationParser{}.Verify(n, testCreds))
}

func TestNotificationParser_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"missing payid", "STATUS=9&SHASIGN=abc"},
		{"missing status", "PAYID=1&SHASIGN=abc"},
		{"bad escape", "PAYID=%zz&STATUS=9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NotificationParser{}.Parse([]byte(tt.payload), nil)
			assert.ErrorIs(t, err, notification.ErrMalformed)
		})
	}
}
