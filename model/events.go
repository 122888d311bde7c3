package model

import (
	"fmt"
	"strconv"
)

// EventKind is the type of business event that triggers a notification.
type EventKind string

const (
	KindNewTicket         EventKind = "new_ticket"
	KindTicketMessage     EventKind = "ticket_message"
	KindTicketStatus      EventKind = "ticket_status"
	KindNewInvoice        EventKind = "new_invoice"
	KindNewRecommendation EventKind = "new_recommendation"
)

// AllKinds lists every supported event kind.
var AllKinds = []EventKind{
	KindNewTicket,
	KindTicketMessage,
	KindTicketStatus,
	KindNewInvoice,
	KindNewRecommendation,
}

// Valid returns true if the kind is one of the supported event kinds.
func (k EventKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Payload holds the kind-specific fields of an event.
type Payload map[string]interface{}

// String returns the payload value for key formatted as a string, or an empty string.
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers arrive as float64.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', 2, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Int64 returns the payload value for key as an int64 and whether it was present and numeric.
func (p Payload) Int64(key string) (int64, bool) {
	switch t := p[key].(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Attachment is an optional file delivered alongside an event, such as an invoice PDF.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Event is an ephemeral notification event. It is created by a business-action handler, dispatched
// once and then discarded.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Recipient  Actor       `json:"recipient"`
	Payload    Payload     `json:"payload"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Validate returns an error if the event can't be dispatched.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return e.Recipient.Validate()
}

// Reference returns the entity the event refers to, if any.
func (e Event) Reference() (string, int64, bool) {
	var refType, key string
	switch e.Kind {
	case KindNewTicket, KindTicketMessage, KindTicketStatus:
		refType, key = "ticket", "ticket_id"
	case KindNewInvoice:
		refType, key = "invoice", "invoice_id"
	case KindNewRecommendation:
		refType, key = "recommendation", "recommendation_id"
	default:
		return "", 0, false
	}
	id, ok := e.Payload.Int64(key)
	if !ok {
		return "", 0, false
	}
	return refType, id, true
}
