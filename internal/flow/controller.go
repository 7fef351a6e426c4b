package flow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/quiz"
	"github.com/BTreeMap/SkinPipe/internal/recommend"
)

var (
	// ErrInvalidTransition is returned when an event is not valid in the current step.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidPackage is returned when the selected package is not a known combo key.
	ErrInvalidPackage = errors.New("invalid package")
)

// stepProgress is the percentage shown for each widget step.
var stepProgress = map[models.StateType]int{
	models.StateTrigger:         0,
	models.StatePhoto:           25,
	models.StateQuiz:            50,
	models.StateRecommendations: 100,
	models.StateRoutine:         100,
}

// ControllerOpts holds Controller configuration.
type ControllerOpts struct {
	Questions  []quiz.Question
	Resolve    func(models.AnswerSet) models.Recommendation
	OnComplete func(answers models.AnswerSet, rec models.Recommendation)
}

// ControllerOption configures a Controller.
type ControllerOption func(*ControllerOpts)

// WithQuestions replaces the default questionnaire.
func WithQuestions(qs []quiz.Question) ControllerOption {
	return func(o *ControllerOpts) { o.Questions = qs }
}

// WithResolver replaces the recommendation resolver.
func WithResolver(fn func(models.AnswerSet) models.Recommendation) ControllerOption {
	return func(o *ControllerOpts) { o.Resolve = fn }
}

// WithOnComplete installs a callback fired when the quiz finishes.
func WithOnComplete(fn func(answers models.AnswerSet, rec models.Recommendation)) ControllerOption {
	return func(o *ControllerOpts) { o.OnComplete = fn }
}

// Controller owns the widget step and everything collected along the way.
// The step only changes through its event methods. It is not safe for
// concurrent use.
type Controller struct {
	state           models.StateType
	photoMode       bool
	analysis        *models.SkinAnalysis
	answers         models.AnswerSet
	recommendation  *models.Recommendation
	selectedPackage models.ComboKey

	questions  []quiz.Question
	resolve    func(models.AnswerSet) models.Recommendation
	onComplete func(models.AnswerSet, models.Recommendation)
}

// NewController returns a controller at the trigger step.
func NewController(opts ...ControllerOption) *Controller {
	var cfg ControllerOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Questions == nil {
		cfg.Questions = quiz.DefaultQuestions()
	}
	if cfg.Resolve == nil {
		cfg.Resolve = recommend.ResolveRecommendation
	}
	return &Controller{
		state:      models.StateTrigger,
		answers:    models.AnswerSet{},
		questions:  cfg.Questions,
		resolve:    cfg.Resolve,
		onComplete: cfg.OnComplete,
	}
}

func (c *Controller) invalid(event string) error {
	slog.Warn("Controller: invalid transition", "event", event, "state", c.state)
	return fmt.Errorf("%w: %s in step %s", ErrInvalidTransition, event, c.state)
}

func (c *Controller) reset() {
	c.state = models.StateTrigger
	c.photoMode = false
	c.analysis = nil
	c.answers = models.AnswerSet{}
	c.recommendation = nil
	c.selectedPackage = ""
}

// Open starts the flow from the trigger, with or without the photo step.
func (c *Controller) Open(withPhoto bool) error {
	if c.state != models.StateTrigger {
		return c.invalid("open")
	}
	c.reset()
	c.photoMode = withPhoto
	if withPhoto {
		c.state = models.StatePhoto
		return nil
	}
	c.enterQuiz()
	return nil
}

// CompleteAnalysis attaches a photo analysis and moves to the quiz.
func (c *Controller) CompleteAnalysis(a models.SkinAnalysis) error {
	if c.state != models.StatePhoto {
		return c.invalid("complete analysis")
	}
	c.analysis = &a
	c.enterQuiz()
	return nil
}

// SkipAnalysis leaves the photo step without an analysis.
func (c *Controller) SkipAnalysis() error {
	if c.state != models.StatePhoto {
		return c.invalid("skip analysis")
	}
	c.enterQuiz()
	return nil
}

// enterQuiz moves to the quiz, finishing at once when no question remains.
func (c *Controller) enterQuiz() {
	c.state = models.StateQuiz
	if c.sequencer().Done() {
		c.finishQuiz()
	}
}

func (c *Controller) sequencer(opts ...quiz.Option) *quiz.Sequencer {
	base := []quiz.Option{
		quiz.WithQuestions(c.questions),
		quiz.WithAnalysis(c.analysis),
		quiz.WithAnswers(c.answers),
	}
	return quiz.NewSequencer(append(base, opts...)...)
}

// SelectAnswer records an answer for the current question. It returns true
// when the answer completed the quiz. A rejected answer changes nothing.
func (c *Controller) SelectAnswer(questionID, value string) (bool, error) {
	if c.state != models.StateQuiz {
		return false, c.invalid("select answer")
	}
	seq := c.sequencer()
	done, err := seq.Select(questionID, value)
	if err != nil {
		return false, err
	}
	c.answers = seq.Answers()
	if done {
		c.finishQuiz()
	}
	return done, nil
}

func (c *Controller) finishQuiz() {
	rec := c.resolve(c.answers)
	c.recommendation = &rec
	c.state = models.StateRecommendations
	slog.Info("Controller: quiz complete", "comboKey", rec.ComboKey, "answers", len(c.answers))
	if c.onComplete != nil {
		c.onComplete(c.answers.Clone(), rec)
	}
}

// SelectPackage opens the routine builder for the chosen combo.
func (c *Controller) SelectPackage(key models.ComboKey) error {
	if c.state != models.StateRecommendations {
		return c.invalid("select package")
	}
	if !models.IsValidComboKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidPackage, key)
	}
	c.selectedPackage = key
	c.state = models.StateRoutine
	return nil
}

// Back returns from the routine builder to the recommendations.
func (c *Controller) Back() error {
	if c.state != models.StateRoutine {
		return c.invalid("back")
	}
	c.selectedPackage = ""
	c.state = models.StateRecommendations
	return nil
}

// Close discards everything and returns to the trigger. It is valid in every step.
func (c *Controller) Close() {
	c.reset()
}

// State returns the current step.
func (c *Controller) State() models.StateType { return c.state }

// Progress returns the progress percentage of the current step.
func (c *Controller) Progress() int { return stepProgress[c.state] }

// PhotoMode reports whether the flow was opened with the photo step.
func (c *Controller) PhotoMode() bool { return c.photoMode }

// Analysis returns the attached analysis, or nil.
func (c *Controller) Analysis() *models.SkinAnalysis { return c.analysis }

// Answers returns a copy of the answers so far.
func (c *Controller) Answers() models.AnswerSet { return c.answers.Clone() }

// Recommendation returns the resolved recommendation once the quiz is done.
func (c *Controller) Recommendation() *models.Recommendation { return c.recommendation }

// SelectedPackage returns the combo chosen for the routine builder.
func (c *Controller) SelectedPackage() models.ComboKey { return c.selectedPackage }

// CurrentQuestion returns the question to show, or nil outside the quiz.
func (c *Controller) CurrentQuestion() *quiz.Question {
	if c.state != models.StateQuiz {
		return nil
	}
	return c.sequencer().Current()
}

// QuizProgress returns the position in the quiz, or nil outside the quiz.
func (c *Controller) QuizProgress() *quiz.Progress {
	if c.state != models.StateQuiz {
		return nil
	}
	p := c.sequencer().Progress()
	return &p
}

// snapshot is the persisted form of a controller.
type snapshot struct {
	State           models.StateType
	PhotoMode       bool
	Analysis        *models.SkinAnalysis
	Answers         models.AnswerSet
	SelectedPackage models.ComboKey
}

func (c *Controller) snapshot() snapshot {
	return snapshot{
		State:           c.state,
		PhotoMode:       c.photoMode,
		Analysis:        c.analysis,
		Answers:         c.answers.Clone(),
		SelectedPackage: c.selectedPackage,
	}
}

// restore loads a snapshot. The recommendation is resolved again from the
// answers rather than stored.
func (c *Controller) restore(s snapshot) error {
	if !models.IsValidState(s.State) {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidTransition, s.State)
	}
	c.reset()
	c.state = s.State
	c.photoMode = s.PhotoMode
	c.analysis = s.Analysis
	if s.Answers != nil {
		c.answers = s.Answers.Clone()
	}
	switch c.state {
	case models.StateRecommendations, models.StateRoutine:
		rec := c.resolve(c.answers)
		c.recommendation = &rec
	}
	if c.state == models.StateRoutine {
		c.selectedPackage = s.SelectedPackage
	}
	return nil
}
