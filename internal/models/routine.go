package models

// Default reminder times used when nothing valid is stored.
const (
	DefaultAMReminder = "08:00"
	DefaultPMReminder = "20:00"
)

// Routine maps a routine step id to the chosen product id.
type Routine map[string]string

// ReminderTimes holds the two daily reminder times as HH:MM strings.
type ReminderTimes struct {
	AM string `json:"am"`
	PM string `json:"pm"`
}

// DefaultReminderTimes returns the reminder times used for new owners.
func DefaultReminderTimes() ReminderTimes {
	return ReminderTimes{AM: DefaultAMReminder, PM: DefaultPMReminder}
}

// Validate checks both times are HH:MM.
func (r ReminderTimes) Validate() error {
	if err := ValidateClockTime(r.AM); err != nil {
		return err
	}
	return ValidateClockTime(r.PM)
}

// RoutineStep is one slot of the daily routine.
type RoutineStep struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// RoutineProduct is a product selectable for exactly one step.
type RoutineProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Step string `json:"step"`
}

// RoutineSettings is everything the routine builder persists for an owner.
type RoutineSettings struct {
	Owner     string        `json:"owner"`
	Routine   Routine       `json:"routine"`
	Reminders ReminderTimes `json:"reminder_times"`
	Contact   string        `json:"contact,omitempty"`
}
