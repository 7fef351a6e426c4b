package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/notify"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Message) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return "", nil
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	id, err := s.AddJob("* * * * *", func() {})
	if err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if s.Len() != 1 || s.Next(id).IsZero() {
		t.Errorf("job not registered: len=%d next=%v", s.Len(), s.Next(id))
	}
	if _, err := s.AddJob("every tuesday", func() {}); err == nil {
		t.Error("expected invalid expression error")
	}
	s.Remove(id)
	if s.Len() != 0 {
		t.Errorf("len after remove = %d", s.Len())
	}
}

func TestCronExpr(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"08:00", "0 8 * * *", true},
		{"20:30", "30 20 * * *", true},
		{"00:05", "5 0 * * *", true},
		{"8:00", "", false},
		{"24:00", "", false},
		{"noon", "", false},
	}
	for _, tt := range tests {
		got, err := CronExpr(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("CronExpr(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
		if !tt.ok && !errors.Is(err, models.ErrInvalidClockTime) {
			t.Errorf("CronExpr(%q) error = %v, want ErrInvalidClockTime", tt.in, err)
		}
	}
}

func TestReminderBody(t *testing.T) {
	if got := ReminderBody(SlotAM); got != "Time for your AM skincare routine!" {
		t.Errorf("AM body = %q", got)
	}
	if got := ReminderBody(SlotPM); got != "Time for your PM skincare routine!" {
		t.Errorf("PM body = %q", got)
	}
}

func TestReminders_SyncReplacesAndRemoves(t *testing.T) {
	s := NewScheduler(WithLocation(time.UTC))
	defer s.Stop()
	r := NewReminders(s, &recordingNotifier{})

	if err := r.Sync("alice", models.ReminderTimes{AM: "07:00", PM: "21:00"}, "15551234567"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("jobs = %d, want 2", s.Len())
	}
	next := r.Next("alice")
	if len(next) != 2 || next[0].Hour() != 7 || next[1].Hour() != 21 {
		t.Errorf("next = %v", next)
	}

	if err := r.Sync("alice", models.ReminderTimes{AM: "06:30", PM: "22:15"}, "15551234567"); err != nil {
		t.Fatalf("Sync again: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("jobs after resync = %d, want 2", s.Len())
	}
	if next := r.Next("alice"); next[0].Minute() != 30 {
		t.Errorf("next after resync = %v", next)
	}

	if err := r.Sync("alice", models.ReminderTimes{AM: "06:30", PM: "22:15"}, ""); err != nil {
		t.Fatalf("Sync without contact: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("jobs without contact = %d, want 0", s.Len())
	}

	if err := r.Sync("bob", models.ReminderTimes{AM: "7am", PM: "21:00"}, "15551234567"); err == nil {
		t.Error("expected invalid time error")
	}
	if s.Len() != 0 {
		t.Errorf("jobs after failed sync = %d", s.Len())
	}
}

func TestReminders_Restore(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	r := NewReminders(s, &recordingNotifier{})
	n := r.Restore([]models.RoutineSettings{
		{Owner: "alice", Reminders: models.DefaultReminderTimes(), Contact: "15551234567"},
		{Owner: "bob", Reminders: models.DefaultReminderTimes()},
		{Owner: "carol", Reminders: models.ReminderTimes{AM: "bad", PM: "20:00"}, Contact: "15557654321"},
	})
	if n != 1 || s.Len() != 2 {
		t.Errorf("restored %d owners with %d jobs, want 1 and 2", n, s.Len())
	}
	r.Remove("alice")
	if s.Len() != 0 {
		t.Errorf("jobs after remove = %d", s.Len())
	}
}

func TestReminders_Fire(t *testing.T) {
	n := &recordingNotifier{}
	r := NewReminders(NewScheduler(), n)
	defer r.sched.Stop()
	r.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }

	r.fire("alice", SlotPM, "15551234567")
	if len(n.msgs) != 1 {
		t.Fatalf("messages = %d", len(n.msgs))
	}
	msg := n.msgs[0]
	if msg.Kind != "reminder" || msg.To != "15551234567" || msg.Body != "Time for your PM skincare routine!" {
		t.Errorf("message = %+v", msg)
	}
	if msg.DedupeKey != "reminder:alice:pm:2026-10-19" {
		t.Errorf("dedupe key = %q", msg.DedupeKey)
	}
}

func TestReminders_FireThroughDispatcher(t *testing.T) {
	mock := notify.NewMockSender()
	r := NewReminders(NewScheduler(), notify.NewDispatcher(mock, nil, 0))
	defer r.sched.Stop()
	r.fire("alice", SlotAM, "+1 555 123 4567")
	if sent := mock.Sent(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Errorf("sent = %+v", sent)
	}
}
