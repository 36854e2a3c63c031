package epdq

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/notification"
	"github.com/punchamoorthee/payconnector/internal/signature"
)

const fieldSignature = "SHASIGN"

// NotificationParser reads ePDQ's form-encoded, SHA-OUT signed notifications.
type NotificationParser struct{}

var _ notification.Parser = NotificationParser{}

// Parse keeps every field except SHASIGN in arrival order so the signature can be
// recomputed over exactly what was received.
func (NotificationParser) Parse(payload []byte, _ http.Header) (*notification.Notification, error) {
	fields, err := parseForm(string(payload))
	if err != nil {
		return nil, err
	}

	n := &notification.Notification{Gateway: Name, Payload: payload}
	var payID, payIDSub string
	for _, f := range fields {
		switch strings.ToUpper(f.Name) {
		case fieldSignature:
			n.Signature = f.Value
			continue
		case "PAYID":
			payID = f.Value
		case "PAYIDSUB":
			payIDSub = f.Value
		case "STATUS":
			n.StatusCode = f.Value
		}
		n.Fields = append(n.Fields, f)
	}

	if payID == "" || n.StatusCode == "" {
		return nil, fmt.Errorf("%w: missing PAYID or STATUS", notification.ErrMalformed)
	}
	n.TransactionID = payID
	n.Reference = payID + "/" + payIDSub
	return n, nil
}

func (NotificationParser) Verify(n *notification.Notification, creds domain.Credentials) bool {
	return signature.Verify(n.Fields, n.Signature, creds.SHAOutPassphrase)
}

func parseForm(body string) ([]signature.Param, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty body", notification.ErrMalformed)
	}
	var fields []signature.Param
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", notification.ErrMalformed, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", notification.ErrMalformed, err)
		}
		fields = append(fields, signature.Param{Name: n, Value: v})
	}
	return fields, nil
}
