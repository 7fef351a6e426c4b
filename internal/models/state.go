// Package models defines state management structures for SkinPipe flows.
package models

import "time"

// FlowState represents the persisted snapshot of one widget session.
type FlowState struct {
	SessionID    string            `json:"session_id"`
	FlowType     FlowType          `json:"flow_type"`
	CurrentState StateType         `json:"current_state"`
	StateData    map[string]string `json:"state_data,omitempty"` // Additional state-specific data
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Completion records one finished questionnaire.
type Completion struct {
	SessionID   string    `json:"session_id"`
	ComboKey    ComboKey  `json:"combo_key"`
	Answers     AnswerSet `json:"answers"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompletionStats summarizes completions per combo key.
type CompletionStats struct {
	Total      int              `json:"total"`
	ByComboKey map[ComboKey]int `json:"by_combo_key"`
}

// TimerInfo provides information about an active session expiry timer.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
	Description string    `json:"description"`
}
