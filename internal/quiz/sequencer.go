package quiz

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SkinPipe/internal/models"
)

var (
	// ErrNoCurrentQuestion is returned when selecting after the flow completed.
	ErrNoCurrentQuestion = errors.New("no current question")
	// ErrQuestionMismatch is returned when the selection targets another question.
	ErrQuestionMismatch = errors.New("question is not the current question")
	// ErrInvalidOption is returned when the value is not a presented option.
	ErrInvalidOption = errors.New("option not available for current question")
)

// Progress reports the 1-based position of the current question.
type Progress struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// Opts holds configuration for a Sequencer.
type Opts struct {
	Questions        []Question
	Analysis         *models.SkinAnalysis
	Answers          models.AnswerSet
	OnAnswerSelected func(questionID, value string)
	OnFlowComplete   func(answers models.AnswerSet)
}

// Option configures a Sequencer.
type Option func(*Opts)

// WithQuestions replaces the default questionnaire.
func WithQuestions(qs []Question) Option {
	return func(o *Opts) { o.Questions = qs }
}

// WithAnalysis attaches a photo analysis used to filter options.
func WithAnalysis(a *models.SkinAnalysis) Option {
	return func(o *Opts) { o.Analysis = a }
}

// WithAnswers resumes a sequencer from previously recorded answers.
func WithAnswers(a models.AnswerSet) Option {
	return func(o *Opts) { o.Answers = a }
}

// WithOnAnswerSelected installs the callback fired after each accepted selection.
func WithOnAnswerSelected(fn func(questionID, value string)) Option {
	return func(o *Opts) { o.OnAnswerSelected = fn }
}

// WithOnFlowComplete installs the callback fired once the last effective question is answered.
func WithOnFlowComplete(fn func(answers models.AnswerSet)) Option {
	return func(o *Opts) { o.OnFlowComplete = fn }
}

// Sequencer walks one user through the effective question list.
// It is not safe for concurrent use; callers serialize selections.
type Sequencer struct {
	questions  []Question
	analysis   *models.SkinAnalysis
	answers    models.AnswerSet
	onSelected func(questionID, value string)
	onComplete func(answers models.AnswerSet)
}

// NewSequencer creates a sequencer positioned at the first effective question.
func NewSequencer(opts ...Option) *Sequencer {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Questions == nil {
		cfg.Questions = DefaultQuestions()
	}
	s := &Sequencer{
		questions:  cfg.Questions,
		analysis:   cfg.Analysis,
		answers:    cfg.Answers.Clone(),
		onSelected: cfg.OnAnswerSelected,
		onComplete: cfg.OnFlowComplete,
	}
	slog.Debug("quiz.NewSequencer: created", "questions", len(s.questions), "resumedAnswers", len(s.answers), "hasAnalysis", s.analysis != nil)
	return s
}

func (s *Sequencer) snapshot() Snapshot {
	return Snapshot{Answers: s.answers, Analysis: s.analysis}
}

// Effective returns the effective question list for the answers so far.
func (s *Sequencer) Effective() []Question {
	return Effective(s.questions, s.snapshot())
}

// Current returns the question to present, or nil when the flow is complete.
func (s *Sequencer) Current() *Question {
	for _, q := range s.Effective() {
		if !s.answers.Has(q.ID) {
			q := q
			return &q
		}
	}
	return nil
}

// Done reports whether every effective question has an answer.
func (s *Sequencer) Done() bool {
	return s.Current() == nil
}

// Answers returns a copy of the answers recorded so far.
func (s *Sequencer) Answers() models.AnswerSet {
	return s.answers.Clone()
}

// Progress reports the current position within the effective list. Once the
// flow is complete Index equals Total.
func (s *Sequencer) Progress() Progress {
	eff := s.Effective()
	for i, q := range eff {
		if !s.answers.Has(q.ID) {
			return Progress{Index: i + 1, Total: len(eff)}
		}
	}
	return Progress{Index: len(eff), Total: len(eff)}
}

// Select records value for the current question and advances. It returns
// true when the selection completed the flow. A rejected selection leaves the
// sequencer unchanged.
func (s *Sequencer) Select(questionID, value string) (bool, error) {
	cur := s.Current()
	if cur == nil {
		slog.Warn("quiz.Sequencer.Select: no current question", "questionID", questionID)
		return false, ErrNoCurrentQuestion
	}
	if cur.ID != questionID {
		slog.Warn("quiz.Sequencer.Select: question mismatch", "expected", cur.ID, "got", questionID)
		return false, fmt.Errorf("%w: expected %q, got %q", ErrQuestionMismatch, cur.ID, questionID)
	}
	if !cur.HasOption(value) {
		slog.Warn("quiz.Sequencer.Select: invalid option", "questionID", questionID, "value", value)
		return false, fmt.Errorf("%w: %q for %q", ErrInvalidOption, value, questionID)
	}

	s.answers[questionID] = value
	slog.Debug("quiz.Sequencer.Select: answer recorded", "questionID", questionID, "value", value)
	if s.onSelected != nil {
		s.onSelected(questionID, value)
	}

	if !s.Done() {
		return false, nil
	}
	s.prune()
	slog.Info("quiz.Sequencer.Select: flow complete", "answers", len(s.answers))
	if s.onComplete != nil {
		s.onComplete(s.answers.Clone())
	}
	return true, nil
}

// prune drops answers to questions that are no longer effective, so a
// completed set holds exactly the presented questions.
func (s *Sequencer) prune() {
	keep := make(map[string]bool)
	for _, q := range s.Effective() {
		keep[q.ID] = true
	}
	for id := range s.answers {
		if !keep[id] {
			delete(s.answers, id)
		}
	}
}
