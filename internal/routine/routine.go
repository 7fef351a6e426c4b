// Package routine implements the routine builder: one product per routine
// step plus the two daily reminder times, persisted per owner in the
// key-value settings of the store.
package routine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/store"
	"github.com/BTreeMap/SkinPipe/internal/util"
)

// Setting keys.
const (
	KeyRoutine       = "routine"
	KeyReminderTimes = "reminderTimes"
	KeyContact       = "contact"
)

var (
	ErrEmptyOwner     = errors.New("owner is required")
	ErrUnknownStep    = errors.New("unknown routine step")
	ErrUnknownProduct = errors.New("unknown product")
	ErrWrongStep      = errors.New("product does not belong to step")
)

var steps = []models.RoutineStep{
	{ID: "cleanser", Label: "Cleanser"},
	{ID: "serum", Label: "Serum"},
	{ID: "moisturizer", Label: "Moisturizer"},
	{ID: "spf", Label: "SPF"},
}

var products = []models.RoutineProduct{
	{ID: "1", Name: "Gentle Cleanser", Step: "cleanser"},
	{ID: "2", Name: "Hydrating Serum", Step: "serum"},
	{ID: "3", Name: "Daily Moisturizer", Step: "moisturizer"},
	{ID: "4", Name: "Sun Shield SPF 30", Step: "spf"},
}

// Steps returns the routine steps in display order.
func Steps() []models.RoutineStep {
	return append([]models.RoutineStep(nil), steps...)
}

// Products returns every selectable product.
func Products() []models.RoutineProduct {
	return append([]models.RoutineProduct(nil), products...)
}

func findStep(id string) bool {
	for _, s := range steps {
		if s.ID == id {
			return true
		}
	}
	return false
}

func findProduct(id string) (models.RoutineProduct, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return models.RoutineProduct{}, false
}

// Service reads and writes routine settings. Every change is written through
// immediately.
type Service struct {
	store    store.Store
	onChange func(models.RoutineSettings)
	locks    *util.KeyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithOnChange installs a callback run after reminders or contact change.
func WithOnChange(fn func(models.RoutineSettings)) Option {
	return func(s *Service) { s.onChange = fn }
}

// NewService creates a routine Service over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, locks: util.NewKeyedMutex()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the settings of owner. Missing or unreadable values are
// replaced by defaults; only store failures are errors.
func (s *Service) Load(owner string) (models.RoutineSettings, error) {
	if owner == "" {
		return models.RoutineSettings{}, ErrEmptyOwner
	}
	out := models.RoutineSettings{
		Owner:     owner,
		Routine:   models.Routine{},
		Reminders: models.DefaultReminderTimes(),
	}

	raw, ok, err := s.store.GetSetting(owner, KeyRoutine)
	if err != nil {
		return out, fmt.Errorf("failed to load routine: %w", err)
	}
	if ok {
		var r models.Routine
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			slog.Warn("Routine.Load: malformed routine, using empty routine", "owner", owner, "error", err)
		} else if r != nil {
			out.Routine = r
		}
	}

	raw, ok, err = s.store.GetSetting(owner, KeyReminderTimes)
	if err != nil {
		return out, fmt.Errorf("failed to load reminder times: %w", err)
	}
	if ok {
		var times models.ReminderTimes
		if err := json.Unmarshal([]byte(raw), &times); err != nil {
			slog.Warn("Routine.Load: malformed reminder times, using defaults", "owner", owner, "error", err)
		} else if err := times.Validate(); err != nil {
			slog.Warn("Routine.Load: invalid reminder times, using defaults", "owner", owner, "error", err)
		} else {
			out.Reminders = times
		}
	}

	contact, ok, err := s.store.GetSetting(owner, KeyContact)
	if err != nil {
		return out, fmt.Errorf("failed to load contact: %w", err)
	}
	if ok {
		out.Contact = contact
	}
	return out, nil
}

// SetProduct chooses productID for step. An empty productID clears the step.
func (s *Service) SetProduct(owner, step, productID string) (models.RoutineSettings, error) {
	if !findStep(step) {
		return models.RoutineSettings{}, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	if productID != "" {
		p, ok := findProduct(productID)
		if !ok {
			return models.RoutineSettings{}, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
		}
		if p.Step != step {
			return models.RoutineSettings{}, fmt.Errorf("%w: %s is a %s", ErrWrongStep, p.Name, p.Step)
		}
	}
	unlock := s.locks.Lock(owner)
	defer unlock()
	settings, err := s.Load(owner)
	if err != nil {
		return settings, err
	}
	if productID == "" {
		delete(settings.Routine, step)
	} else {
		settings.Routine[step] = productID
	}
	raw, err := json.Marshal(settings.Routine)
	if err != nil {
		return settings, fmt.Errorf("failed to encode routine: %w", err)
	}
	if err := s.store.SetSetting(owner, KeyRoutine, string(raw)); err != nil {
		return settings, fmt.Errorf("failed to save routine: %w", err)
	}
	slog.Info("Routine.SetProduct: step updated", "owner", owner, "step", step, "product", productID)
	return settings, nil
}

// SetReminders stores the AM and PM reminder times (HH:MM).
func (s *Service) SetReminders(owner string, times models.ReminderTimes) (models.RoutineSettings, error) {
	if err := times.Validate(); err != nil {
		return models.RoutineSettings{}, err
	}
	unlock := s.locks.Lock(owner)
	defer unlock()
	settings, err := s.Load(owner)
	if err != nil {
		return settings, err
	}
	raw, err := json.Marshal(times)
	if err != nil {
		return settings, fmt.Errorf("failed to encode reminder times: %w", err)
	}
	if err := s.store.SetSetting(owner, KeyReminderTimes, string(raw)); err != nil {
		return settings, fmt.Errorf("failed to save reminder times: %w", err)
	}
	settings.Reminders = times
	slog.Info("Routine.SetReminders: reminders updated", "owner", owner, "am", times.AM, "pm", times.PM)
	s.changed(settings)
	return settings, nil
}

// SetContact stores the canonical phone number reminders are sent to. An
// empty phone stops reminders.
func (s *Service) SetContact(owner, phone string) (models.RoutineSettings, error) {
	unlock := s.locks.Lock(owner)
	defer unlock()
	settings, err := s.Load(owner)
	if err != nil {
		return settings, err
	}
	if err := s.store.SetSetting(owner, KeyContact, phone); err != nil {
		return settings, fmt.Errorf("failed to save contact: %w", err)
	}
	settings.Contact = phone
	slog.Info("Routine.SetContact: contact updated", "owner", owner, "hasContact", phone != "")
	s.changed(settings)
	return settings, nil
}

// All loads the settings of every owner that has stored anything.
func (s *Service) All() ([]models.RoutineSettings, error) {
	owners, err := s.store.ListSettingOwners()
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	out := make([]models.RoutineSettings, 0, len(owners))
	for _, owner := range owners {
		settings, err := s.Load(owner)
		if err != nil {
			return nil, err
		}
		out = append(out, settings)
	}
	return out, nil
}

func (s *Service) changed(settings models.RoutineSettings) {
	if s.onChange != nil {
		s.onChange(settings)
	}
}
