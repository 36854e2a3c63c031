package worldpay

import (
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

const journalReferenceRefund = "refund"

// NotificationParser reads orderStatusEvent notifications.
type NotificationParser struct{}

var _ notification.Parser = NotificationParser{}

func (NotificationParser) Parse(payload []byte, _ http.Header) (*notification.Notification, error) {
	var ps paymentService
	if err := xml.Unmarshal(payload, &ps); err != nil {
		return nil, fmt.Errorf("%w: %v", notification.ErrMalformed, err)
	}
	if ps.Notify == nil || ps.Notify.OrderStatusEvent.OrderCode == "" {
		return nil, fmt.Errorf("%w: no orderStatusEvent", notification.ErrMalformed)
	}

	event := ps.Notify.OrderStatusEvent
	n := &notification.Notification{
		Gateway:       Name,
		TransactionID: event.OrderCode,
		Payload:       payload,
	}
	if event.Journal != nil {
		n.StatusCode = event.Journal.JournalType
		for _, ref := range event.Journal.JournalReferences {
			if ref.Type == journalReferenceRefund {
				n.Reference = ref.Reference
			}
		}
	}
	if n.StatusCode == "" && event.Payment != nil {
		n.StatusCode = event.Payment.LastEvent
	}
	if n.StatusCode == "" {
		return nil, fmt.Errorf("%w: no journalType or lastEvent", notification.ErrMalformed)
	}
	return n, nil
}

// Verify always succeeds: Worldpay notifications are unsigned and are
// authenticated by the source IP allow-list alone.
func (NotificationParser) Verify(*notification.Notification, domain.Credentials) bool {
	return true
}
