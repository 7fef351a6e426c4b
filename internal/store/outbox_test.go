package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func outboxBackends(t *testing.T) map[string]OutboxRepo {
	t.Helper()
	sqlite, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "outbox.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]OutboxRepo{
		"memory": NewInMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestOutbox_EnqueueDedupe(t *testing.T) {
	for name, repo := range outboxBackends(t) {
		t.Run(name, func(t *testing.T) {
			id1, err := repo.EnqueueOutboxMessage("+15551234567", OutboxKindReminder, "Time for your AM skincare routine!", "reminder:alice:am:2026-10-19")
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			id2, err := repo.EnqueueOutboxMessage("+15551234567", OutboxKindReminder, "Time for your AM skincare routine!", "reminder:alice:am:2026-10-19")
			if err != nil {
				t.Fatalf("enqueue again: %v", err)
			}
			if id1 != id2 {
				t.Errorf("dedupe key should return existing id: %s vs %s", id1, id2)
			}
			id3, _ := repo.EnqueueOutboxMessage("+15551234567", OutboxKindShare, "summary", "")
			id4, _ := repo.EnqueueOutboxMessage("+15551234567", OutboxKindShare, "summary", "")
			if id3 == id4 {
				t.Error("messages without dedupe key must not collapse")
			}
		})
	}
}

func TestOutboxSender_DeliversAndMarksSent(t *testing.T) {
	for name, repo := range outboxBackends(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := repo.EnqueueOutboxMessage("+15551234567", OutboxKindShare, "hello", "")
			var delivered []string
			sender := NewOutboxSender(repo, func(ctx context.Context, msg OutboxMessage) error {
				delivered = append(delivered, msg.Body)
				return nil
			}, time.Second)

			if n := sender.Poll(context.Background()); n != 1 {
				t.Fatalf("expected 1 claimed, got %d", n)
			}
			if len(delivered) != 1 || delivered[0] != "hello" {
				t.Errorf("delivered = %v", delivered)
			}
			m, err := repo.GetOutboxMessage(id)
			if err != nil || m == nil || m.Status != OutboxStatusSent {
				t.Errorf("expected sent, got %+v, %v", m, err)
			}
			if n := sender.Poll(context.Background()); n != 0 {
				t.Errorf("sent message claimed again")
			}
		})
	}
}

func TestOutboxSender_RetryThenGiveUp(t *testing.T) {
	for name, repo := range outboxBackends(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := repo.EnqueueOutboxMessage("+15551234567", OutboxKindShare, "hello", "")
			clock := time.Now()
			var results []error
			sender := NewOutboxSender(repo, func(ctx context.Context, msg OutboxMessage) error {
				return errors.New("provider down")
			}, time.Second)
			sender.SetMaxAttempts(2)
			sender.now = func() time.Time { return clock }
			sender.OnResult(func(msg OutboxMessage, err error) { results = append(results, err) })

			sender.Poll(context.Background())
			m, _ := repo.GetOutboxMessage(id)
			if m.Status != OutboxStatusQueued || m.Attempts != 1 || m.LastError != "provider down" {
				t.Fatalf("after first failure: %+v", m)
			}
			if m.NextAttemptAt == nil || !m.NextAttemptAt.After(clock) {
				t.Errorf("retry not scheduled in the future: %v", m.NextAttemptAt)
			}

			if n := sender.Poll(context.Background()); n != 0 {
				t.Errorf("message retried before backoff elapsed")
			}

			clock = clock.Add(time.Minute)
			sender.Poll(context.Background())
			m, _ = repo.GetOutboxMessage(id)
			if m.Status != OutboxStatusFailed || m.Attempts != 2 {
				t.Errorf("expected failed after max attempts, got %+v", m)
			}
			if len(results) != 2 {
				t.Errorf("expected 2 results, got %d", len(results))
			}

			// A failed message no longer blocks its dedupe key.
			if _, err := repo.EnqueueOutboxMessage("+1", OutboxKindShare, "x", "k"); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestOutboxSender_RecoverStale(t *testing.T) {
	for name, repo := range outboxBackends(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := repo.EnqueueOutboxMessage("+15551234567", OutboxKindShare, "hello", "")
			past := time.Now().Add(-time.Hour)
			if msgs, err := repo.ClaimDueOutboxMessages(past, 10); err != nil || len(msgs) != 1 {
				t.Fatalf("claim: %v %v", msgs, err)
			}
			sender := NewOutboxSender(repo, func(ctx context.Context, msg OutboxMessage) error { return nil }, time.Second)
			if err := sender.RecoverStaleMessages(); err != nil {
				t.Fatalf("RecoverStaleMessages: %v", err)
			}
			m, _ := repo.GetOutboxMessage(id)
			if m.Status != OutboxStatusQueued {
				t.Errorf("expected requeued, got %s", m.Status)
			}
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, _ := s1.EnqueueOutboxMessage("+15551234567", OutboxKindReminder, "Time for your PM skincare routine!", "")
	s1.SetSetting("alice", "routine", `{"cleanser":"1"}`)
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(path))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, ok, _ := s2.GetSetting("alice", "routine")
	if !ok || v != `{"cleanser":"1"}` {
		t.Errorf("setting lost across reopen: %q", v)
	}
	m, _ := s2.GetOutboxMessage(id)
	if m == nil || m.Status != OutboxStatusQueued {
		t.Errorf("outbox message lost across reopen: %+v", m)
	}
}
