package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	return &StoreBasedStateManager{store: st}
}

// GetCurrentState retrieves the current step of a session.
func (sm *StoreBasedStateManager) GetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType) (models.StateType, error) {
	flowState, err := sm.store.GetFlowState(sessionID, string(flowType))
	if err != nil {
		slog.Error("StateManager GetCurrentState error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return "", err
	}
	if flowState == nil {
		return "", nil
	}
	return flowState.CurrentState, nil
}

// LoadState returns the full persisted session.
func (sm *StoreBasedStateManager) LoadState(ctx context.Context, sessionID string, flowType models.FlowType) (*models.FlowState, error) {
	flowState, err := sm.store.GetFlowState(sessionID, string(flowType))
	if err != nil {
		slog.Error("StateManager LoadState error", "error", err, "sessionID", sessionID)
		return nil, err
	}
	return flowState, nil
}

// SaveState replaces the step and data of a session, keeping its creation time.
func (sm *StoreBasedStateManager) SaveState(ctx context.Context, sessionID string, flowType models.FlowType, state models.StateType, data map[models.DataKey]string) error {
	existing, err := sm.store.GetFlowState(sessionID, string(flowType))
	if err != nil {
		slog.Error("StateManager SaveState get error", "error", err, "sessionID", sessionID)
		return err
	}
	now := time.Now()
	created := now
	if existing != nil && !existing.CreatedAt.IsZero() {
		created = existing.CreatedAt
	}
	stateData := make(map[string]string, len(data))
	for k, v := range data {
		stateData[string(k)] = v
	}
	err = sm.store.SaveFlowState(models.FlowState{
		SessionID:    sessionID,
		FlowType:     flowType,
		CurrentState: state,
		StateData:    stateData,
		CreatedAt:    created,
		UpdatedAt:    now,
	})
	if err != nil {
		slog.Error("StateManager SaveState save error", "error", err, "sessionID", sessionID, "state", state)
		return err
	}
	slog.Debug("StateManager SaveState succeeded", "sessionID", sessionID, "state", state, "keys", len(stateData))
	return nil
}

// ResetState removes all state data for a session.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, sessionID string, flowType models.FlowType) error {
	if err := sm.store.DeleteFlowState(sessionID, string(flowType)); err != nil {
		slog.Error("StateManager ResetState error", "error", err, "sessionID", sessionID)
		return err
	}
	slog.Info("StateManager ResetState succeeded", "sessionID", sessionID, "flowType", flowType)
	return nil
}
