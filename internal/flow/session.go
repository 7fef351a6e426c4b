package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/metrics"
	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/quiz"
	"github.com/BTreeMap/SkinPipe/internal/store"
	"github.com/BTreeMap/SkinPipe/internal/util"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 30 * time.Minute

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// View is what clients see of a session.
type View struct {
	SessionID       string                 `json:"session_id"`
	State           models.StateType       `json:"state"`
	Progress        int                    `json:"progress"`
	PhotoMode       bool                   `json:"photo_mode"`
	Question        *quiz.Question         `json:"question,omitempty"`
	QuizProgress    *quiz.Progress         `json:"quiz_progress,omitempty"`
	Analysis        *models.SkinAnalysis   `json:"analysis,omitempty"`
	Answers         models.AnswerSet       `json:"answers"`
	Recommendation  *models.Recommendation `json:"recommendation,omitempty"`
	SelectedPackage models.ComboKey        `json:"selected_package,omitempty"`
}

// SessionOpts holds SessionManager configuration.
type SessionOpts struct {
	TTL         time.Duration
	Timer       Timer
	Controllers []ControllerOption
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionOpts)

// WithSessionTTL sets the idle TTL. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(o *SessionOpts) { o.TTL = ttl }
}

// WithTimer replaces the timer used for session expiry.
func WithTimer(t Timer) SessionOption {
	return func(o *SessionOpts) { o.Timer = t }
}

// WithControllerOptions passes options to every controller the manager builds.
func WithControllerOptions(opts ...ControllerOption) SessionOption {
	return func(o *SessionOpts) { o.Controllers = append(o.Controllers, opts...) }
}

// SessionManager persists widget controllers between requests. Events on one
// session are serialized; different sessions proceed in parallel.
type SessionManager struct {
	st       store.Store
	states   StateManager
	timer    Timer
	ttl      time.Duration
	ctrlOpts []ControllerOption

	locks *util.KeyedMutex

	mu       sync.Mutex
	gen      uint64
	expiries map[string]expiry
}

// expiry is the idle timer of one session. gen identifies the touch that
// scheduled it.
type expiry struct {
	timerID string
	gen     uint64
}

// NewSessionManager creates a SessionManager over st.
func NewSessionManager(st store.Store, opts ...SessionOption) *SessionManager {
	cfg := SessionOpts{TTL: DefaultSessionTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timer == nil {
		cfg.Timer = NewSimpleTimer()
	}
	return &SessionManager{
		st:       st,
		states:   NewStoreBasedStateManager(st),
		timer:    cfg.Timer,
		ttl:      cfg.TTL,
		ctrlOpts: cfg.Controllers,
		locks:    util.NewKeyedMutex(),
		expiries: make(map[string]expiry),
	}
}

func (m *SessionManager) lock(id string) func() {
	return m.locks.Lock(id)
}

// Start creates a session and opens the flow.
func (m *SessionManager) Start(ctx context.Context, withPhoto bool) (View, error) {
	id := util.GenerateSessionID()
	unlock := m.lock(id)
	defer unlock()

	var completed []models.Recommendation
	c := m.newController(&completed)
	if err := c.Open(withPhoto); err != nil {
		return View{}, err
	}
	if err := m.save(ctx, id, c); err != nil {
		return View{}, err
	}
	metrics.SessionsStarted.WithLabelValues(strconv.FormatBool(withPhoto)).Inc()
	m.recordCompletions(id, c, completed)
	slog.Info("SessionManager.Start: session opened", "sessionID", id, "photo", withPhoto, "state", c.State())
	return viewOf(id, c), nil
}

// Get returns the current view of a session.
func (m *SessionManager) Get(ctx context.Context, id string) (View, error) {
	unlock := m.lock(id)
	defer unlock()
	c, err := m.load(ctx, id, nil)
	if err != nil {
		return View{}, err
	}
	return viewOf(id, c), nil
}

// Apply runs fn against the session's controller and saves the result. When
// fn fails nothing is written.
func (m *SessionManager) Apply(ctx context.Context, id string, fn func(*Controller) error) (View, error) {
	unlock := m.lock(id)
	defer unlock()

	var completed []models.Recommendation
	c, err := m.load(ctx, id, &completed)
	if err != nil {
		return View{}, err
	}
	if err := fn(c); err != nil {
		slog.Debug("SessionManager.Apply: event rejected", "sessionID", id, "error", err)
		return View{}, err
	}
	if err := m.save(ctx, id, c); err != nil {
		return View{}, err
	}
	m.recordCompletions(id, c, completed)
	return viewOf(id, c), nil
}

// Close discards a session.
func (m *SessionManager) Close(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()
	if _, err := m.load(ctx, id, nil); err != nil {
		return err
	}
	return m.discard(ctx, id)
}

func (m *SessionManager) discard(ctx context.Context, id string) error {
	m.mu.Lock()
	if e, ok := m.expiries[id]; ok {
		m.timer.Cancel(e.timerID)
		delete(m.expiries, id)
	}
	m.mu.Unlock()
	if err := m.states.ResetState(ctx, id, models.FlowTypeSkincare); err != nil {
		return fmt.Errorf("failed to discard session: %w", err)
	}
	slog.Info("SessionManager: session discarded", "sessionID", id)
	return nil
}

// expire discards the session unless it was touched again after the timer
// of generation gen was scheduled.
func (m *SessionManager) expire(id string, gen uint64) {
	unlock := m.lock(id)
	defer unlock()
	m.mu.Lock()
	e, ok := m.expiries[id]
	m.mu.Unlock()
	if !ok || e.gen != gen {
		slog.Debug("SessionManager.expire: stale timer ignored", "sessionID", id)
		return
	}
	slog.Info("SessionManager.expire: session idle", "sessionID", id, "ttl", m.ttl)
	if err := m.discard(context.Background(), id); err != nil {
		slog.Error("SessionManager.expire: discard failed", "sessionID", id, "error", err)
	}
}

// PurgeExpired removes persisted sessions idle for longer than the TTL. It
// covers sessions left behind by a previous process.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int, error) {
	if m.ttl <= 0 {
		return 0, nil
	}
	n, err := m.st.PurgeFlowStates(time.Now().Add(-m.ttl))
	if err != nil {
		slog.Error("SessionManager.PurgeExpired failed", "error", err)
		return 0, err
	}
	if n > 0 {
		slog.Info("SessionManager.PurgeExpired: removed idle sessions", "count", n)
	}
	return n, nil
}

// ActiveTimers lists pending expiry timers when the timer supports it.
func (m *SessionManager) ActiveTimers() []models.TimerInfo {
	if lister, ok := m.timer.(interface{ ListActive() []models.TimerInfo }); ok {
		return lister.ListActive()
	}
	return nil
}

// Stop cancels all expiry timers.
func (m *SessionManager) Stop() {
	if stopper, ok := m.timer.(interface{ Stop() }); ok {
		stopper.Stop()
	}
}

func (m *SessionManager) newController(completed *[]models.Recommendation) *Controller {
	opts := append([]ControllerOption{}, m.ctrlOpts...)
	if completed != nil {
		opts = append(opts, WithOnComplete(func(_ models.AnswerSet, rec models.Recommendation) {
			*completed = append(*completed, rec)
		}))
	}
	return NewController(opts...)
}

func (m *SessionManager) load(ctx context.Context, id string, completed *[]models.Recommendation) (*Controller, error) {
	fs, err := m.states.LoadState(ctx, id, models.FlowTypeSkincare)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if fs == nil {
		return nil, ErrSessionNotFound
	}
	snap, err := decodeSnapshot(fs)
	if err != nil {
		return nil, err
	}
	c := m.newController(completed)
	if err := c.restore(snap); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *SessionManager) save(ctx context.Context, id string, c *Controller) error {
	data, err := encodeSnapshot(c.snapshot())
	if err != nil {
		return err
	}
	if err := m.states.SaveState(ctx, id, models.FlowTypeSkincare, c.State(), data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.touch(id)
	return nil
}

// touch restarts the idle timer of a session.
func (m *SessionManager) touch(id string) {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.expiries[id]; ok {
		m.timer.Cancel(old.timerID)
		delete(m.expiries, id)
	}
	m.gen++
	gen := m.gen
	timerID, err := m.timer.ScheduleAfter(m.ttl, func() { m.expire(id, gen) })
	if err != nil {
		slog.Error("SessionManager.touch: schedule failed", "sessionID", id, "error", err)
		return
	}
	m.expiries[id] = expiry{timerID: timerID, gen: gen}
}

func (m *SessionManager) recordCompletions(id string, c *Controller, completed []models.Recommendation) {
	for _, rec := range completed {
		metrics.Completions.WithLabelValues(string(rec.ComboKey)).Inc()
		err := m.st.AddCompletion(models.Completion{
			SessionID:   id,
			ComboKey:    rec.ComboKey,
			Answers:     c.Answers(),
			CompletedAt: time.Now(),
		})
		if err != nil {
			slog.Error("SessionManager: failed to record completion", "sessionID", id, "error", err)
		}
	}
}

func encodeSnapshot(s snapshot) (map[models.DataKey]string, error) {
	data := map[models.DataKey]string{
		models.DataKeyPhotoMode: strconv.FormatBool(s.PhotoMode),
	}
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}
	data[models.DataKeyAnswers] = string(answers)
	if s.Analysis != nil {
		analysis, err := json.Marshal(s.Analysis)
		if err != nil {
			return nil, fmt.Errorf("failed to encode analysis: %w", err)
		}
		data[models.DataKeyAnalysis] = string(analysis)
	}
	if s.SelectedPackage != "" {
		data[models.DataKeySelectedPackage] = string(s.SelectedPackage)
	}
	return data, nil
}

func decodeSnapshot(fs *models.FlowState) (snapshot, error) {
	snap := snapshot{
		State:           fs.CurrentState,
		Answers:         models.AnswerSet{},
		PhotoMode:       fs.StateData[string(models.DataKeyPhotoMode)] == "true",
		SelectedPackage: models.ComboKey(fs.StateData[string(models.DataKeySelectedPackage)]),
	}
	if raw := fs.StateData[string(models.DataKeyAnswers)]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Answers); err != nil {
			return snapshot{}, fmt.Errorf("failed to decode answers: %w", err)
		}
	}
	if raw := fs.StateData[string(models.DataKeyAnalysis)]; raw != "" {
		var a models.SkinAnalysis
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return snapshot{}, fmt.Errorf("failed to decode analysis: %w", err)
		}
		snap.Analysis = &a
	}
	return snap, nil
}

func viewOf(id string, c *Controller) View {
	return View{
		SessionID:       id,
		State:           c.State(),
		Progress:        c.Progress(),
		PhotoMode:       c.PhotoMode(),
		Question:        c.CurrentQuestion(),
		QuizProgress:    c.QuizProgress(),
		Analysis:        c.Analysis(),
		Answers:         c.Answers(),
		Recommendation:  c.Recommendation(),
		SelectedPackage: c.SelectedPackage(),
	}
}
