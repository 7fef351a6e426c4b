// Package flow drives one widget session from the trigger button to the
// routine builder and persists it between requests.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
)

// StateManager defines the interface for managing flow state.
type StateManager interface {
	// GetCurrentState returns "" when the session has no state.
	GetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType) (models.StateType, error)

	// LoadState returns nil, nil for unknown sessions.
	LoadState(ctx context.Context, sessionID string, flowType models.FlowType) (*models.FlowState, error)

	// SaveState replaces the step and all data of a session in one write.
	SaveState(ctx context.Context, sessionID string, flowType models.FlowType, state models.StateType, data map[models.DataKey]string) error

	// ResetState removes all state data for a session.
	ResetState(ctx context.Context, sessionID string, flowType models.FlowType) error
}

// Timer defines the interface for scheduling delayed actions.
type Timer interface {
	// ScheduleAfter schedules fn after delay and returns a timer ID.
	ScheduleAfter(delay time.Duration, fn func()) (string, error)

	// Cancel stops a scheduled function. Unknown IDs are ignored.
	Cancel(id string) error
}
