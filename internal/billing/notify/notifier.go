package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"housing-ledger/internal/observability/metrics"
)

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders messages and sends them through a channel, suppressing
// identical messages for the same account and event within the dedupe window.
type Notifier struct {
	channel      Channel
	name         string
	template     *Template
	clock        Clock
	dedupeWindow time.Duration
	mu           sync.Mutex
	sent         map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithChannelName sets the metrics label of the channel.
func WithChannelName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.name = name
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		name:     "webhook",
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify renders and sends msg.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if n == nil || n.channel == nil {
		return nil
	}
	content, err := n.template.Render(msg)
	if err != nil {
		return errors.Wrap(err, "render notification")
	}
	release, ok := n.reserve(msg, content)
	if !ok {
		return nil
	}
	err = n.channel.Send(ctx, content)
	metrics.IncNotification(n.name, metrics.Result(err))
	if err != nil {
		release()
		return err
	}
	return nil
}

// reserve records msg as sent unless an identical message for the same key
// is still inside the dedupe window. Check and record happen under one lock.
// release restores the previous record after a failed send.
func (n *Notifier) reserve(msg Message, content string) (release func(), ok bool) {
	if n.dedupeWindow <= 0 {
		return func() {}, true
	}
	key := notificationKey(msg)
	hash := hashContent(content)
	now := n.clock.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()
	previous, seen := n.sent[key]
	if seen && previous.hash == hash && now.Sub(previous.at) < n.dedupeWindow {
		return nil, false
	}
	reserved := sendRecord{at: now, hash: hash}
	n.sent[key] = reserved
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.sent[key] != reserved {
			return
		}
		if seen {
			n.sent[key] = previous
		} else {
			delete(n.sent, key)
		}
	}, true
}

func notificationKey(msg Message) string {
	return msg.AccountID + "|" + string(msg.Event)
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// LogNotifier writes messages to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs msg.
func (l *LogNotifier) Notify(_ context.Context, msg Message) error {
	l.logger.Info("notification",
		zap.String("event", string(msg.Event)),
		zap.String("account_id", msg.AccountID),
		zap.String("user_id", msg.UserID),
		zap.String("subject", msg.Subject),
		zap.Any("fields", msg.Fields),
	)
	metrics.IncNotification("log", metrics.ResultSuccess)
	return nil
}
