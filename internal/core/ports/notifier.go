package ports

import (
	"context"
	"time"
)

// DelayMessage is the input of message composition.
type DelayMessage struct {
	DelayMinutes int64
	Origin       string
	Destination  string
}

// MessageComposer turns a delay into a short SMS body.
type MessageComposer interface {
	ComposeDelayMessage(ctx context.Context, msg DelayMessage) (string, error)
}

// MessageSender dispatches an SMS. The idempotency key is forwarded to the
// provider so a retried request does not produce a second message.
type MessageSender interface {
	SendSMS(ctx context.Context, to, body, idempotencyKey string) (providerMessageID string, err error)
}

// NotificationReceipt records a successfully dispatched notification.
type NotificationReceipt struct {
	IdempotencyKey    string
	DeliveryID        string
	ContactPhone      string
	Body              string
	ProviderMessageID string
	SentAt            time.Time
}

// NotificationReceipts remembers which idempotency keys were already sent so
// that a retry after a lost acknowledgement is answered locally.
type NotificationReceipts interface {
	// Find returns the receipt for key, or nil when nothing was sent yet.
	Find(ctx context.Context, idempotencyKey string) (*NotificationReceipt, error)

	// Save stores a receipt. Saving an existing key is not an error.
	Save(ctx context.Context, receipt NotificationReceipt) error
}

// Clock is the source of wall-clock time for activities. Coordinator code
// never reads it directly.
type Clock interface {
	Now() time.Time
}
