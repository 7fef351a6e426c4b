// Package store provides storage backends for SkinPipe.
//
// Every backend persists widget sessions, routine settings and completed
// questionnaires. SQL backends also carry the outbox used for outbound
// messages.
package store

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
)

// ErrStoreClosed is returned by InMemoryStore after Close.
var ErrStoreClosed = errors.New("store is closed")

// Store is the persistence contract shared by all backends.
type Store interface {
	// SaveFlowState stores or replaces the state of one session.
	SaveFlowState(state models.FlowState) error
	// GetFlowState returns nil, nil when the session has no state.
	GetFlowState(sessionID, flowType string) (*models.FlowState, error)
	DeleteFlowState(sessionID, flowType string) error
	// PurgeFlowStates deletes sessions last updated before cutoff.
	PurgeFlowStates(before time.Time) (int, error)

	// GetSetting returns ok=false when owner has no value for key.
	GetSetting(owner, key string) (value string, ok bool, err error)
	SetSetting(owner, key, value string) error
	// ListSettingOwners returns every owner with at least one setting, sorted.
	ListSettingOwners() ([]string, error)

	AddCompletion(c models.Completion) error
	ListCompletions() ([]models.Completion, error)

	Close() error
}

type flowKey struct {
	sessionID string
	flowType  string
}

// InMemoryStore is a process-local Store. It also implements OutboxRepo.
type InMemoryStore struct {
	mu          sync.RWMutex
	flowStates  map[flowKey]models.FlowState
	settings    map[string]map[string]string
	completions []models.Completion
	outbox      map[string]*OutboxMessage
	outboxOrder []string
	closed      bool
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flowStates: make(map[flowKey]models.FlowState),
		settings:   make(map[string]map[string]string),
		outbox:     make(map[string]*OutboxMessage),
	}
}

func copyStateData(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	state.StateData = copyStateData(state.StateData)
	s.flowStates[flowKey{state.SessionID, string(state.FlowType)}] = state
	slog.Debug("InMemoryStore.SaveFlowState: saved", "sessionID", state.SessionID, "state", state.CurrentState)
	return nil
}

func (s *InMemoryStore) GetFlowState(sessionID, flowType string) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	state, ok := s.flowStates[flowKey{sessionID, flowType}]
	if !ok {
		return nil, nil
	}
	state.StateData = copyStateData(state.StateData)
	return &state, nil
}

func (s *InMemoryStore) DeleteFlowState(sessionID, flowType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.flowStates, flowKey{sessionID, flowType})
	return nil
}

func (s *InMemoryStore) PurgeFlowStates(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	n := 0
	for k, st := range s.flowStates {
		if st.UpdatedAt.Before(before) {
			delete(s.flowStates, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetSetting(owner, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrStoreClosed
	}
	v, ok := s.settings[owner][key]
	return v, ok, nil
}

func (s *InMemoryStore) SetSetting(owner, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.settings[owner] == nil {
		s.settings[owner] = make(map[string]string)
	}
	s.settings[owner][key] = value
	return nil
}

func (s *InMemoryStore) ListSettingOwners() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	owners := make([]string, 0, len(s.settings))
	for o := range s.settings {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *InMemoryStore) AddCompletion(c models.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	c.Answers = c.Answers.Clone()
	s.completions = append(s.completions, c)
	return nil
}

func (s *InMemoryStore) ListCompletions() ([]models.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]models.Completion, len(s.completions))
	for i, c := range s.completions {
		c.Answers = c.Answers.Clone()
		out[i] = c
	}
	return out, nil
}

// Close marks the store closed. Later calls fail with ErrStoreClosed.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stats counts completions per combo key.
func Stats(s Store) (models.CompletionStats, error) {
	completions, err := s.ListCompletions()
	if err != nil {
		return models.CompletionStats{}, err
	}
	stats := models.CompletionStats{ByComboKey: make(map[models.ComboKey]int)}
	for _, c := range completions {
		stats.Total++
		stats.ByComboKey[c.ComboKey]++
	}
	return stats, nil
}

// New opens the backend selected by opts: Redis when an address is set,
// otherwise the SQL backend matching the DSN, otherwise in-memory.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.RedisAddr != "":
		slog.Debug("store.New: using Redis store", "addr", cfg.RedisAddr)
		return NewRedisStore(opts...)
	case cfg.DSN != "" && DetectDSNType(cfg.DSN) == "postgres":
		slog.Debug("store.New: using Postgres store")
		return NewPostgresStore(opts...)
	case cfg.DSN != "":
		slog.Debug("store.New: using SQLite store", "path", cfg.DSN)
		return NewSQLiteStore(opts...)
	default:
		slog.Debug("store.New: using in-memory store")
		return NewInMemoryStore(), nil
	}
}
