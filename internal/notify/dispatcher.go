package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/metrics"
	"github.com/BTreeMap/SkinPipe/internal/store"
)

// Message is one outbound message.
type Message struct {
	Kind      string
	To        string
	Body      string
	DedupeKey string
}

// Dispatcher sends messages through the outbox when one is configured, so
// they are retried and survive restarts, and directly otherwise.
type Dispatcher struct {
	sender Sender
	outbox store.OutboxRepo
	worker *store.OutboxSender
}

// NewDispatcher creates a Dispatcher. outbox may be nil.
func NewDispatcher(sender Sender, outbox store.OutboxRepo, pollInterval time.Duration) *Dispatcher {
	d := &Dispatcher{sender: sender, outbox: outbox}
	if outbox != nil {
		d.worker = store.NewOutboxSender(outbox, d.deliver, pollInterval)
		d.worker.OnResult(func(msg store.OutboxMessage, err error) {
			countResult(msg.Kind, err)
		})
	}
	return d
}

func (d *Dispatcher) deliver(ctx context.Context, msg store.OutboxMessage) error {
	return d.sender.SendMessage(ctx, msg.Recipient, msg.Body)
}

func countResult(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	metrics.MessagesSent.WithLabelValues(kind, result).Inc()
}

// Queued reports whether messages go through the outbox.
func (d *Dispatcher) Queued() bool {
	return d.outbox != nil
}

// Send canonicalizes the recipient and sends or enqueues the message. It
// returns the outbox message ID when queued.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (string, error) {
	to, err := CanonicalPhone(msg.To)
	if err != nil {
		return "", err
	}
	if d.outbox == nil {
		err := d.sender.SendMessage(ctx, to, msg.Body)
		countResult(msg.Kind, err)
		return "", err
	}
	id, err := d.outbox.EnqueueOutboxMessage(to, msg.Kind, msg.Body, msg.DedupeKey)
	if err != nil {
		slog.Error("Dispatcher.Send: enqueue failed", "kind", msg.Kind, "error", err)
		return "", err
	}
	slog.Debug("Dispatcher.Send: message queued", "id", id, "kind", msg.Kind)
	return id, nil
}

// Run delivers queued messages until ctx is cancelled. It returns at once
// when there is no outbox.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.worker == nil {
		return
	}
	if err := d.worker.RecoverStaleMessages(); err != nil {
		slog.Error("Dispatcher.Run: recover stale messages failed", "error", err)
	}
	d.worker.Run(ctx)
}

// Flush delivers one batch of due queued messages and returns how many were claimed.
func (d *Dispatcher) Flush(ctx context.Context) int {
	if d.worker == nil {
		return 0
	}
	return d.worker.Poll(ctx)
}
