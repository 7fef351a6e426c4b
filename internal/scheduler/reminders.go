package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/notify"
	"github.com/BTreeMap/SkinPipe/internal/store"
)

// Reminder slots.
const (
	SlotAM = "am"
	SlotPM = "pm"
)

// sendTimeout bounds one reminder delivery.
const sendTimeout = 30 * time.Second

// Notifier delivers one message. notify.Dispatcher implements it.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) (string, error)
}

// CronExpr converts an HH:MM time into a daily cron expression.
func CronExpr(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil || len(hhmm) != 5 {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidClockTime, hhmm)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// ReminderBody returns the message sent for a slot.
func ReminderBody(slot string) string {
	label := "AM"
	if slot == SlotPM {
		label = "PM"
	}
	return fmt.Sprintf("Time for your %s skincare routine!", label)
}

// Reminders keeps two daily reminder jobs per owner.
type Reminders struct {
	sched    *Scheduler
	notifier Notifier
	now      func() time.Time

	mu      sync.Mutex
	entries map[string][]cron.EntryID
}

// NewReminders creates a Reminders registry on sched.
func NewReminders(sched *Scheduler, notifier Notifier) *Reminders {
	return &Reminders{
		sched:    sched,
		notifier: notifier,
		now:      time.Now,
		entries:  make(map[string][]cron.EntryID),
	}
}

// Sync replaces the reminder jobs of owner. Without a contact the owner has
// no reminders.
func (r *Reminders) Sync(owner string, times models.ReminderTimes, contact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(owner)
	if contact == "" {
		slog.Debug("Reminders.Sync: no contact, reminders off", "owner", owner)
		return nil
	}
	if err := times.Validate(); err != nil {
		return err
	}

	var ids []cron.EntryID
	for _, slot := range []struct {
		name string
		at   string
	}{{SlotAM, times.AM}, {SlotPM, times.PM}} {
		expr, err := CronExpr(slot.at)
		if err != nil {
			r.removeIDs(ids)
			return err
		}
		name := slot.name
		id, err := r.sched.AddJob(expr, func() { r.fire(owner, name, contact) })
		if err != nil {
			r.removeIDs(ids)
			return fmt.Errorf("failed to schedule %s reminder: %w", name, err)
		}
		ids = append(ids, id)
	}
	r.entries[owner] = ids
	slog.Info("Reminders.Sync: reminders scheduled", "owner", owner, "am", times.AM, "pm", times.PM)
	return nil
}

// Remove drops the reminder jobs of owner.
func (r *Reminders) Remove(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(owner)
}

func (r *Reminders) removeLocked(owner string) {
	r.removeIDs(r.entries[owner])
	delete(r.entries, owner)
}

func (r *Reminders) removeIDs(ids []cron.EntryID) {
	for _, id := range ids {
		r.sched.Remove(id)
	}
}

// Restore schedules reminders for every stored owner and returns how many
// owners got reminders.
func (r *Reminders) Restore(all []models.RoutineSettings) int {
	n := 0
	for _, s := range all {
		if s.Contact == "" {
			continue
		}
		if err := r.Sync(s.Owner, s.Reminders, s.Contact); err != nil {
			slog.Error("Reminders.Restore: failed to schedule", "owner", s.Owner, "error", err)
			continue
		}
		n++
	}
	slog.Info("Reminders.Restore: reminders restored", "owners", n)
	return n
}

// Next returns the upcoming run times of owner's reminders, AM first.
func (r *Reminders) Next(owner string) []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Time
	for _, id := range r.entries[owner] {
		out = append(out, r.sched.Next(id))
	}
	return out
}

// fire sends one reminder. The dedupe key keeps a slot to one message per day.
func (r *Reminders) fire(owner, slot, contact string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	msg := notify.Message{
		Kind:      store.OutboxKindReminder,
		To:        contact,
		Body:      ReminderBody(slot),
		DedupeKey: fmt.Sprintf("reminder:%s:%s:%s", owner, slot, r.now().Format("2006-01-02")),
	}
	if _, err := r.notifier.Send(ctx, msg); err != nil {
		slog.Error("Reminders.fire: send failed", "owner", owner, "slot", slot, "error", err)
		return
	}
	slog.Info("Reminders.fire: reminder sent", "owner", owner, "slot", slot)
}
