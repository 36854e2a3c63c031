package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

const (
	signatureHeader  = "Stripe-Signature"
	defaultTolerance = 5 * time.Minute
)

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			Object        string `json:"object"`
			Status        string `json:"status"`
			PaymentIntent string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// NotificationParser reads webhook events and checks the Stripe-Signature
// header against the platform webhook secret.
type NotificationParser struct {
	WebhookSecret string
	Tolerance     time.Duration
	Now           func() time.Time
}

var _ notification.Parser = (*NotificationParser)(nil)

// Parse derives the status code from the event type. Refund events carry the
// refund's own status as a suffix, e.g. "charge.refund.updated:succeeded".
func (p *NotificationParser) Parse(payload []byte, header http.Header) (*notification.Notification, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", notification.ErrMalformed, err)
	}
	obj := ev.Data.Object
	if ev.Type == "" || obj.ID == "" {
		return nil, fmt.Errorf("%w: missing event type or object", notification.ErrMalformed)
	}

	n := &notification.Notification{
		Gateway:    Name,
		StatusCode: ev.Type,
		Signature:  header.Get(signatureHeader),
		Payload:    payload,
	}
	switch obj.Object {
	case "payment_intent":
		n.TransactionID = obj.ID
	case "refund":
		n.TransactionID = obj.PaymentIntent
		n.Reference = obj.ID
		n.StatusCode = ev.Type + ":" + obj.Status
	default:
		n.TransactionID = obj.PaymentIntent
	}
	if n.TransactionID == "" {
		return nil, fmt.Errorf("%w: event %s has no payment intent", notification.ErrMalformed, ev.ID)
	}
	return n, nil
}

// Verify checks the v1 HMAC-SHA256 over "timestamp.payload" and rejects stale
// timestamps. Account credentials are not involved.
func (p *NotificationParser) Verify(n *notification.Notification, _ domain.Credentials) bool {
	if p.WebhookSecret == "" || n.Signature == "" {
		return false
	}
	timestamp, signatures := parseSignatureHeader(n.Signature)
	if timestamp == "" || len(signatures) == 0 {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	tolerance := p.Tolerance
	if tolerance == 0 {
		tolerance = defaultTolerance
	}
	if age := now().Sub(time.Unix(ts, 0)); age > tolerance || age < -tolerance {
		return false
	}

	expected := computeSignature(p.WebhookSecret, timestamp, n.Payload)
	for _, s := range signatures {
		got, err := hex.DecodeString(s)
		if err == nil && hmac.Equal(got, expected) {
			return true
		}
	}
	return false
}

func computeSignature(secret, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(h string) (timestamp string, v1 []string) {
	for _, part := range strings.Split(h, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			v1 = append(v1, v)
		}
	}
	return timestamp, v1
}
