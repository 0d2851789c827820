package notify

import (
	"context"

	"github.com/cockroachdb/errors"
)

// MultiNotifier dispatches messages to multiple senders.
type MultiNotifier struct {
	senders []Sender
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(senders ...Sender) *MultiNotifier {
	return &MultiNotifier{senders: senders}
}

// Notify forwards msg to every sender and combines their errors.
func (m *MultiNotifier) Notify(ctx context.Context, msg Message) error {
	if m == nil {
		return nil
	}
	var combined error
	for _, sender := range m.senders {
		if sender == nil {
			continue
		}
		if err := sender.Notify(ctx, msg); err != nil {
			combined = errors.CombineErrors(combined, err)
		}
	}
	return combined
}
