package flow

import (
	"errors"
	"testing"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/quiz"
)

// answerAll answers every remaining question, using picks where given and the
// first option otherwise.
func answerAll(t *testing.T, c *Controller, picks map[string]string) {
	t.Helper()
	for i := 0; c.State() == models.StateQuiz; i++ {
		if i > 20 {
			t.Fatal("quiz did not finish")
		}
		q := c.CurrentQuestion()
		if q == nil {
			t.Fatal("no current question in quiz step")
		}
		value, ok := picks[q.ID]
		if !ok {
			value = q.Options[0].Value
		}
		if _, err := c.SelectAnswer(q.ID, value); err != nil {
			t.Fatalf("SelectAnswer(%s, %s): %v", q.ID, value, err)
		}
	}
}

func TestController_FullFlowWithoutPhoto(t *testing.T) {
	c := NewController()
	if c.State() != models.StateTrigger || c.Progress() != 0 {
		t.Fatalf("initial state %s/%d", c.State(), c.Progress())
	}
	if err := c.Open(false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.State() != models.StateQuiz || c.Progress() != 50 {
		t.Fatalf("after open: %s/%d", c.State(), c.Progress())
	}
	if p := c.QuizProgress(); p == nil || p.Index != 1 || p.Total != 8 {
		t.Errorf("quiz progress = %+v", p)
	}

	answerAll(t, c, map[string]string{"concern": "acne"})

	if c.State() != models.StateRecommendations || c.Progress() != 100 {
		t.Fatalf("after quiz: %s/%d", c.State(), c.Progress())
	}
	rec := c.Recommendation()
	if rec == nil || rec.ComboKey != models.ComboOily || rec.Bundle.Name != "Oily Skincare Combo" {
		t.Fatalf("recommendation = %+v", rec)
	}
	if c.CurrentQuestion() != nil || c.QuizProgress() != nil {
		t.Error("quiz accessors should be nil outside the quiz")
	}

	if err := c.SelectPackage(rec.ComboKey); err != nil {
		t.Fatalf("SelectPackage: %v", err)
	}
	if c.State() != models.StateRoutine || c.SelectedPackage() != models.ComboOily {
		t.Fatalf("after package: %s %s", c.State(), c.SelectedPackage())
	}
	if err := c.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if c.State() != models.StateRecommendations || c.SelectedPackage() != "" {
		t.Fatalf("after back: %s %q", c.State(), c.SelectedPackage())
	}

	c.Close()
	if c.State() != models.StateTrigger || len(c.Answers()) != 0 || c.Recommendation() != nil {
		t.Errorf("close did not reset: %s %v %v", c.State(), c.Answers(), c.Recommendation())
	}
}

func TestController_PhotoFlow(t *testing.T) {
	c := NewController()
	if err := c.Open(true); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.State() != models.StatePhoto || c.Progress() != 25 || !c.PhotoMode() {
		t.Fatalf("after open: %s/%d photo=%v", c.State(), c.Progress(), c.PhotoMode())
	}
	analysis := models.SkinAnalysis{
		SkinType:   "oily",
		Confidence: 90,
		DetectedConditions: []models.DetectedCondition{
			{Category: models.ConditionAcne, Severity: models.SeverityModerate, Confidence: 95, Areas: []string{"cheeks"}},
		},
	}
	if err := c.CompleteAnalysis(analysis); err != nil {
		t.Fatalf("CompleteAnalysis: %v", err)
	}
	if c.State() != models.StateQuiz || c.Analysis() == nil {
		t.Fatalf("after analysis: %s", c.State())
	}
	q := c.CurrentQuestion()
	if q == nil || q.ID != "concern" {
		t.Fatalf("current question = %+v", q)
	}
	if q.HasOption("acne") {
		t.Error("covered acne option still offered")
	}
	if _, err := c.SelectAnswer("concern", "acne"); !errors.Is(err, quiz.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}

func TestController_SkipAnalysis(t *testing.T) {
	c := NewController()
	c.Open(true)
	if err := c.SkipAnalysis(); err != nil {
		t.Fatalf("SkipAnalysis: %v", err)
	}
	if c.State() != models.StateQuiz || c.Analysis() != nil || !c.PhotoMode() {
		t.Errorf("after skip: %s analysis=%v photo=%v", c.State(), c.Analysis(), c.PhotoMode())
	}
}

func TestController_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Controller)
		event func(*Controller) error
		state models.StateType
	}{
		{"answer at trigger", func(*Controller) {}, func(c *Controller) error { _, err := c.SelectAnswer("concern", "acne"); return err }, models.StateTrigger},
		{"package at trigger", func(*Controller) {}, func(c *Controller) error { return c.SelectPackage(models.ComboDry) }, models.StateTrigger},
		{"back at trigger", func(*Controller) {}, func(c *Controller) error { return c.Back() }, models.StateTrigger},
		{"skip without photo", func(c *Controller) { c.Open(false) }, func(c *Controller) error { return c.SkipAnalysis() }, models.StateQuiz},
		{"analysis in quiz", func(c *Controller) { c.Open(false) }, func(c *Controller) error { return c.CompleteAnalysis(models.SkinAnalysis{}) }, models.StateQuiz},
		{"open twice", func(c *Controller) { c.Open(true) }, func(c *Controller) error { return c.Open(false) }, models.StatePhoto},
		{"package in quiz", func(c *Controller) { c.Open(false) }, func(c *Controller) error { return c.SelectPackage(models.ComboDry) }, models.StateQuiz},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController()
			tt.setup(c)
			err := tt.event(c)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if c.State() != tt.state {
				t.Errorf("state changed to %s, want %s", c.State(), tt.state)
			}
		})
	}
}

func TestController_RejectedAnswerChangesNothing(t *testing.T) {
	c := NewController()
	c.Open(false)
	c.SelectAnswer("concern", "tan")
	before := c.Answers()

	for _, sel := range [][2]string{{"concern", "tan"}, {"skinType", "purple"}, {"gender", "male"}} {
		if _, err := c.SelectAnswer(sel[0], sel[1]); err == nil {
			t.Errorf("SelectAnswer(%s, %s) accepted", sel[0], sel[1])
		}
	}
	if got := c.Answers(); len(got) != len(before) || got.Get("concern") != "tan" {
		t.Errorf("answers changed: %v", got)
	}
	if q := c.CurrentQuestion(); q == nil || q.ID != "skinType" {
		t.Errorf("current question moved: %+v", q)
	}
}

func TestController_InvalidPackage(t *testing.T) {
	c := NewController()
	c.Open(false)
	answerAll(t, c, nil)
	if err := c.SelectPackage("glowing"); !errors.Is(err, ErrInvalidPackage) {
		t.Errorf("expected ErrInvalidPackage, got %v", err)
	}
	if c.State() != models.StateRecommendations {
		t.Errorf("state = %s", c.State())
	}
}

func TestController_OnCompleteFiresOnce(t *testing.T) {
	var calls []models.ComboKey
	c := NewController(WithOnComplete(func(a models.AnswerSet, rec models.Recommendation) {
		calls = append(calls, rec.ComboKey)
	}))
	c.Open(false)
	answerAll(t, c, map[string]string{"concern": "aging"})
	if len(calls) != 1 || calls[0] != models.ComboAging {
		t.Errorf("onComplete calls = %v", calls)
	}
}

func TestController_EmptyQuizCompletesOnOpen(t *testing.T) {
	c := NewController(WithQuestions([]quiz.Question{}))
	if err := c.Open(false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.State() != models.StateRecommendations {
		t.Fatalf("state = %s", c.State())
	}
	if rec := c.Recommendation(); rec == nil || rec.ComboKey != models.ComboDry {
		t.Errorf("recommendation = %+v", rec)
	}
}

func TestController_CustomResolver(t *testing.T) {
	c := NewController(
		WithQuestions([]quiz.Question{}),
		WithResolver(func(models.AnswerSet) models.Recommendation {
			return models.Recommendation{ComboKey: models.ComboSensitive}
		}),
	)
	c.Open(false)
	if rec := c.Recommendation(); rec == nil || rec.ComboKey != models.ComboSensitive {
		t.Errorf("recommendation = %+v", rec)
	}
}

func TestController_RestoreResolvesAgain(t *testing.T) {
	c := NewController()
	err := c.restore(snapshot{
		State:           models.StateRoutine,
		Answers:         models.AnswerSet{"concern": "dark-spots"},
		SelectedPackage: models.ComboPigmentation,
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if rec := c.Recommendation(); rec == nil || rec.ComboKey != models.ComboPigmentation {
		t.Errorf("recommendation = %+v", rec)
	}
	if c.SelectedPackage() != models.ComboPigmentation {
		t.Errorf("selected = %s", c.SelectedPackage())
	}
	if err := c.restore(snapshot{State: "nowhere"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for unknown step, got %v", err)
	}
}
