// Package api provides the HTTP server for SkinPipe.
//
// It exposes the widget session flow, recommendation resolution, the routine
// builder and completion statistics as JSON endpoints, and wires the store,
// analyzer, notifier and reminder scheduler together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/analysis"
	"github.com/BTreeMap/SkinPipe/internal/flow"
	"github.com/BTreeMap/SkinPipe/internal/metrics"
	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/notify"
	"github.com/BTreeMap/SkinPipe/internal/recommend"
	"github.com/BTreeMap/SkinPipe/internal/routine"
	"github.com/BTreeMap/SkinPipe/internal/scheduler"
	"github.com/BTreeMap/SkinPipe/internal/store"
)

// Defaults for the API server.
const (
	DefaultServerAddress   = ":8080"
	DefaultOutboxPoll      = 5 * time.Second
	DefaultMaxImageBytes   = 10 << 20
	defaultShutdownTimeout = 10 * time.Second
	purgeCron              = "*/10 * * * *"
)

// Analyzer kinds.
const (
	AnalyzerMock   = "mock"
	AnalyzerOpenAI = "openai"
)

// Notifier kinds.
const (
	NotifierLog    = "log"
	NotifierTwilio = "twilio"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	SessionTTL    time.Duration
	OutboxPoll    time.Duration
	MaxImageBytes int64
	Analyzer      string
	Notifier      string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSessionTTL sets how long idle sessions are kept.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithOutboxPoll sets how often queued messages are delivered.
func WithOutboxPoll(d time.Duration) Option {
	return func(o *Opts) { o.OutboxPoll = d }
}

// WithMaxImageBytes bounds uploaded photos.
func WithMaxImageBytes(n int64) Option {
	return func(o *Opts) { o.MaxImageBytes = n }
}

// WithAnalyzer selects the photo analyzer ("mock" or "openai").
func WithAnalyzer(kind string) Option {
	return func(o *Opts) { o.Analyzer = kind }
}

// WithNotifier selects the message transport ("log" or "twilio").
func WithNotifier(kind string) Option {
	return func(o *Opts) { o.Notifier = kind }
}

func resolveOpts(opts []Option) Opts {
	cfg := Opts{
		Addr:          DefaultServerAddress,
		SessionTTL:    flow.DefaultSessionTTL,
		OutboxPoll:    DefaultOutboxPoll,
		MaxImageBytes: DefaultMaxImageBytes,
		Analyzer:      AnalyzerMock,
		Notifier:      NotifierLog,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Server serves the SkinPipe HTTP API.
type Server struct {
	cfg        Opts
	store      store.Store
	sessions   *flow.SessionManager
	analyzer   analysis.Analyzer
	catalog    *recommend.Catalog
	routines   *routine.Service
	dispatcher *notify.Dispatcher
	sched      *scheduler.Scheduler
	reminders  *scheduler.Reminders
	mux        *http.ServeMux

	analyzingMu sync.Mutex
	analyzing   map[string]struct{}
}

// NewServer wires a Server over already constructed dependencies.
func NewServer(st store.Store, analyzer analysis.Analyzer, sender notify.Sender, opts ...Option) *Server {
	cfg := resolveOpts(opts)

	var outbox store.OutboxRepo
	if repo, ok := st.(store.OutboxRepo); ok {
		outbox = repo
	} else {
		slog.Info("NewServer: store has no outbox, messages are sent directly", "store", fmt.Sprintf("%T", st))
	}
	dispatcher := notify.NewDispatcher(sender, outbox, cfg.OutboxPoll)
	sched := scheduler.NewScheduler()
	reminders := scheduler.NewReminders(sched, dispatcher)

	s := &Server{
		cfg:        cfg,
		store:      st,
		sessions:   flow.NewSessionManager(st, flow.WithSessionTTL(cfg.SessionTTL)),
		analyzer:   analyzer,
		catalog:    recommend.DefaultCatalog(),
		dispatcher: dispatcher,
		sched:      sched,
		reminders:  reminders,
		mux:        http.NewServeMux(),
		analyzing:  make(map[string]struct{}),
	}
	s.routines = routine.NewService(st, routine.WithOnChange(s.syncReminders))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /questions", s.questionsHandler)
	s.mux.HandleFunc("POST /sessions", s.startSessionHandler)
	s.mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.closeSessionHandler)
	s.mux.HandleFunc("POST /sessions/{id}/analysis", s.analysisHandler)
	s.mux.HandleFunc("POST /sessions/{id}/analysis/skip", s.skipAnalysisHandler)
	s.mux.HandleFunc("POST /sessions/{id}/answers", s.answerHandler)
	s.mux.HandleFunc("POST /sessions/{id}/package", s.packageHandler)
	s.mux.HandleFunc("POST /sessions/{id}/back", s.backHandler)
	s.mux.HandleFunc("POST /sessions/{id}/share", s.shareHandler)
	s.mux.HandleFunc("POST /recommendations/resolve", s.resolveHandler)
	s.mux.HandleFunc("GET /routines/catalog", s.routineCatalogHandler)
	s.mux.HandleFunc("POST /routines", s.createOwnerHandler)
	s.mux.HandleFunc("GET /routines/{owner}", s.getRoutineHandler)
	s.mux.HandleFunc("PUT /routines/{owner}/steps/{step}", s.setStepHandler)
	s.mux.HandleFunc("PUT /routines/{owner}/reminders", s.setRemindersHandler)
	s.mux.HandleFunc("PUT /routines/{owner}/contact", s.setContactHandler)
	s.mux.HandleFunc("GET /stats", s.statsHandler)
	s.mux.HandleFunc("GET /timers", s.timersHandler)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) syncReminders(settings models.RoutineSettings) {
	if err := s.reminders.Sync(settings.Owner, settings.Reminders, settings.Contact); err != nil {
		slog.Error("Server.syncReminders: failed", "owner", settings.Owner, "error", err)
	}
}

// beginAnalysis marks an upload as in flight for the session. It returns
// false when another upload already holds the session.
func (s *Server) beginAnalysis(id string) bool {
	s.analyzingMu.Lock()
	defer s.analyzingMu.Unlock()
	if _, busy := s.analyzing[id]; busy {
		return false
	}
	s.analyzing[id] = struct{}{}
	return true
}

func (s *Server) endAnalysis(id string) {
	s.analyzingMu.Lock()
	delete(s.analyzing, id)
	s.analyzingMu.Unlock()
}

// Restore reschedules stored reminders and removes sessions left over from a
// previous run.
func (s *Server) Restore(ctx context.Context) error {
	all, err := s.routines.All()
	if err != nil {
		return fmt.Errorf("failed to load routine settings: %w", err)
	}
	s.reminders.Restore(all)
	if _, err := s.sessions.PurgeExpired(ctx); err != nil {
		return fmt.Errorf("failed to purge sessions: %w", err)
	}
	if _, err := s.sched.AddJob(purgeCron, func() {
		s.sessions.PurgeExpired(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule session purge: %w", err)
	}
	return nil
}

// Close stops background work. The store is owned by the caller.
func (s *Server) Close() {
	s.sched.Stop()
	s.sessions.Stop()
}

// Serve runs the HTTP server and the outbox worker until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go s.dispatcher.Run(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Serve: listening", "addr", s.cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Server.Serve: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// Run builds every module from its options and serves until SIGINT or SIGTERM.
func Run(storeOpts []store.Option, analyzerOpts []analysis.Option, notifyOpts []notify.Option, apiOpts []Option) error {
	cfg := resolveOpts(apiOpts)

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	analyzer, err := buildAnalyzer(cfg.Analyzer, analyzerOpts)
	if err != nil {
		return err
	}
	sender, err := buildSender(cfg.Notifier, notifyOpts)
	if err != nil {
		return err
	}

	srv := NewServer(st, analyzer, sender, apiOpts...)
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Restore(ctx); err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func buildAnalyzer(kind string, opts []analysis.Option) (analysis.Analyzer, error) {
	switch kind {
	case "", AnalyzerMock:
		slog.Info("Using mock photo analyzer")
		return analysis.NewMockAnalyzer(opts...), nil
	case AnalyzerOpenAI:
		a, err := analysis.NewGenAIAnalyzer(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI analyzer: %w", err)
		}
		slog.Info("Using OpenAI photo analyzer")
		return a, nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q", kind)
	}
}

func buildSender(kind string, opts []notify.Option) (notify.Sender, error) {
	switch kind {
	case "", NotifierLog:
		slog.Info("Using log-only message sender")
		return notify.LogSender{}, nil
	case NotifierTwilio:
		sender, err := notify.NewTwilioSender(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio sender: %w", err)
		}
		slog.Info("Using Twilio message sender")
		return sender, nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", kind)
	}
}
