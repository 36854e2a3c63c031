package notification

import (
	"errors"
	"net/http"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/signature"
)

var (
	// ErrForbidden is returned when the notification source is not allow-listed.
	ErrForbidden = errors.New("notification source not allowed")
	// ErrMalformed is returned by parsers for payloads they cannot read.
	ErrMalformed = errors.New("malformed notification payload")
)

// Notification is one untrusted inbound status change. It lives for a single
// verify-and-dispatch cycle and is never stored.
type Notification struct {
	Gateway       string
	TransactionID string
	// Reference identifies the refund a refund notification is about.
	Reference  string
	StatusCode string
	Signature  string
	Fields     []signature.Param
	Payload    []byte
}

// Parser reads and authenticates one gateway's notification format.
type Parser interface {
	Parse(payload []byte, header http.Header) (*Notification, error)
	// Verify recomputes the notification signature with the account's
	// credentials. Gateways without payload signatures rely on the IP allow-list.
	Verify(n *Notification, creds domain.Credentials) bool
}
