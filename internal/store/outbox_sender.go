package store

import (
	"context"
	"log/slog"
	"time"
)

// Outbox sender defaults.
const (
	DefaultOutboxPollInterval = 5 * time.Second
	DefaultOutboxMaxAttempts  = 5
	DefaultOutboxClaimLimit   = 10
	defaultStaleThreshold     = 5 * time.Minute
	baseRetryBackoff          = 10 * time.Second
)

// OutboxSendFunc performs the actual delivery of one message.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// OutboxSender periodically claims due outbox messages and delivers them.
type OutboxSender struct {
	repo           OutboxRepo
	sendFunc       OutboxSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
	now            func() time.Time
	onResult       func(msg OutboxMessage, err error)
}

// NewOutboxSender creates a new OutboxSender.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, pollInterval time.Duration) *OutboxSender {
	if pollInterval <= 0 {
		pollInterval = DefaultOutboxPollInterval
	}
	return &OutboxSender{
		repo:           repo,
		sendFunc:       sendFunc,
		pollInterval:   pollInterval,
		staleThreshold: defaultStaleThreshold,
		claimLimit:     DefaultOutboxClaimLimit,
		maxAttempts:    DefaultOutboxMaxAttempts,
		now:            time.Now,
	}
}

// SetMaxAttempts bounds delivery attempts per message. Values below 1 are ignored.
func (s *OutboxSender) SetMaxAttempts(n int) {
	if n >= 1 {
		s.maxAttempts = n
	}
}

// OnResult installs a hook called after every delivery attempt.
func (s *OutboxSender) OnResult(fn func(msg OutboxMessage, err error)) {
	s.onResult = fn
}

// RecoverStaleMessages requeues messages stuck in sending state. Call once at startup.
func (s *OutboxSender) RecoverStaleMessages() error {
	staleBefore := s.now().Add(-s.staleThreshold)
	n, err := s.repo.RequeueStaleSendingMessages(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting outbox sender", "pollInterval", s.pollInterval, "maxAttempts", s.maxAttempts)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll claims and delivers one batch of due messages and returns how many were claimed.
func (s *OutboxSender) Poll(ctx context.Context) int {
	now := s.now()
	msgs, err := s.repo.ClaimDueOutboxMessages(now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.Poll: claim failed", "error", err)
		return 0
	}

	for _, msg := range msgs {
		slog.Debug("OutboxSender.Poll: sending message", "id", msg.ID, "kind", msg.Kind, "attempt", msg.Attempts+1)
		sendErr := s.sendFunc(ctx, msg)
		switch {
		case sendErr == nil:
			if err := s.repo.MarkOutboxMessageSent(msg.ID); err != nil {
				slog.Error("OutboxSender.Poll: mark sent error", "id", msg.ID, "error", err)
			}
			slog.Debug("OutboxSender.Poll: message sent", "id", msg.ID)
		case msg.Attempts+1 >= s.maxAttempts:
			slog.Error("OutboxSender.Poll: giving up", "id", msg.ID, "attempts", msg.Attempts+1, "error", sendErr)
			if err := s.repo.GiveUpOutboxMessage(msg.ID, sendErr.Error()); err != nil {
				slog.Error("OutboxSender.Poll: give up error", "id", msg.ID, "error", err)
			}
		default:
			// Exponential backoff: 10s, 20s, 40s, ...
			backoff := baseRetryBackoff * time.Duration(1<<msg.Attempts)
			slog.Warn("OutboxSender.Poll: send failed, will retry", "id", msg.ID, "retryIn", backoff, "error", sendErr)
			if err := s.repo.FailOutboxMessage(msg.ID, sendErr.Error(), now.Add(backoff)); err != nil {
				slog.Error("OutboxSender.Poll: fail message error", "id", msg.ID, "error", err)
			}
		}
		if s.onResult != nil {
			s.onResult(msg, sendErr)
		}
	}
	return len(msgs)
}
