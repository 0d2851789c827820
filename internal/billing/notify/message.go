package notify

import "context"

// Event names a user-visible ledger change.
type Event string

const (
	EventBillCreated      Event = "bill_created"
	EventPaymentConfirmed Event = "payment_confirmed"
	EventPaymentCancelled Event = "payment_cancelled"
)

// Message is a notification about one account.
type Message struct {
	Event     Event             `json:"event"`
	AccountID string            `json:"account_id"`
	UserID    string            `json:"user_id"`
	Subject   string            `json:"subject"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Sender delivers a message.
type Sender interface {
	Notify(ctx context.Context, msg Message) error
}

func eventLabel(event Event) string {
	switch event {
	case EventBillCreated:
		return "New bill"
	case EventPaymentConfirmed:
		return "Payment confirmed"
	case EventPaymentCancelled:
		return "Payment cancelled"
	default:
		return string(event)
	}
}
