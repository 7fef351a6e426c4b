// Package quiz sequences the skincare questionnaire.
//
// A Question carries an optional inclusion predicate evaluated against an
// immutable Snapshot of the answers so far (and the photo analysis, when one
// exists). The effective question list is recomputed from that snapshot after
// every answer.
package quiz

import (
	"github.com/BTreeMap/SkinPipe/internal/models"
)

// Question identifiers.
const (
	QuestionConcern     = models.AnswerConcern
	QuestionAcneType    = "acneType"
	QuestionAcneCount   = "acneCount"
	QuestionSkinType    = models.AnswerSkinType
	QuestionExercise    = "exercise"
	QuestionSleep       = "sleep"
	QuestionEnvironment = "environment"
	QuestionStress      = "stress"
	QuestionAge         = "age"
	QuestionGender      = "gender"
)

// Snapshot is the read-only view a predicate is evaluated against.
type Snapshot struct {
	Answers  models.AnswerSet
	Analysis *models.SkinAnalysis
}

// Predicate decides whether a question is part of the effective list.
type Predicate func(Snapshot) bool

// Question is one step of the questionnaire.
type Question struct {
	ID      string          `json:"id"`
	Prompt  string          `json:"prompt"`
	Options []models.Option `json:"options"`
	Include Predicate       `json:"-"` // nil means always included
}

// HasOption reports whether value is one of the question's options.
func (q Question) HasOption(value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// AnswerEquals returns a predicate that holds when question id was answered with value.
func AnswerEquals(id, value string) Predicate {
	return func(s Snapshot) bool {
		return s.Answers.Get(id) == value
	}
}

// DefaultQuestions returns the static questionnaire in presentation order.
func DefaultQuestions() []Question {
	acneOnly := AnswerEquals(QuestionConcern, "acne")
	return []Question{
		{
			ID:     QuestionConcern,
			Prompt: "Choose your skin concern",
			Options: []models.Option{
				{Value: "acne", Label: "Acne", CoveredBy: models.ConditionAcne},
				{Value: "dark-spots", Label: "Dark Spots"},
				{Value: "tan", Label: "Tan"},
				{Value: "aging", Label: "Aging", CoveredBy: models.ConditionAging},
			},
		},
		{
			ID:     QuestionAcneType,
			Prompt: "How would you describe your acne?",
			Options: []models.Option{
				{Value: "large-pus", Label: "Large pus filled"},
				{Value: "red-painful", Label: "Red, painful and swollen"},
				{Value: "small-bumps", Label: "Small painful bumps"},
				{Value: "whiteheads-blackheads", Label: "Many whiteheads/blackheads"},
			},
			Include: acneOnly,
		},
		{
			ID:     QuestionAcneCount,
			Prompt: "How many active acne do you have?",
			Options: []models.Option{
				{Value: "0-2", Label: "0-2"},
				{Value: "2-5", Label: "2-5"},
				{Value: "5+", Label: "More than 5"},
			},
			Include: acneOnly,
		},
		{
			ID:     QuestionSkinType,
			Prompt: "What's your skin type?",
			Options: []models.Option{
				{Value: "dry", Label: "Dry", CoveredBy: models.ConditionDry},
				{Value: "oily", Label: "Oily", CoveredBy: models.ConditionOily},
				{Value: "normal", Label: "Normal"},
				{Value: "sensitive", Label: "Sensitive", CoveredBy: models.ConditionSensitive},
			},
		},
		{
			ID:     QuestionExercise,
			Prompt: "How often do you exercise?",
			Options: []models.Option{
				{Value: "regularly", Label: "Regularly"},
				{Value: "sometimes", Label: "Sometimes"},
				{Value: "rarely", Label: "Rarely"},
			},
		},
		{
			ID:     QuestionSleep,
			Prompt: "How are your sleeping patterns?",
			Options: []models.Option{
				{Value: "sound", Label: "Sound sleep"},
				{Value: "moderate", Label: "Moderate sleep"},
				{Value: "disturbed", Label: "Disturbed sleep"},
			},
		},
		{
			ID:     QuestionEnvironment,
			Prompt: "How is your environment?",
			Options: []models.Option{
				{Value: "clean", Label: "Clean"},
				{Value: "urban", Label: "Urban"},
				{Value: "industrial", Label: "Industrial"},
			},
		},
		{
			ID:     QuestionStress,
			Prompt: "How is your stress levels?",
			Options: []models.Option{
				{Value: "high", Label: "High"},
				{Value: "moderate", Label: "Moderate"},
				{Value: "low", Label: "Low"},
			},
		},
		{
			ID:     QuestionAge,
			Prompt: "Your age group?",
			Options: []models.Option{
				{Value: "12-18", Label: "12-18"},
				{Value: "19-25", Label: "19-25"},
				{Value: "26-35", Label: "26-35"},
				{Value: "36-45", Label: "36-45"},
				{Value: "45+", Label: "45+"},
			},
		},
		{
			ID:     QuestionGender,
			Prompt: "Your Gender?",
			Options: []models.Option{
				{Value: "male", Label: "Male"},
				{Value: "female", Label: "Female"},
			},
		},
	}
}

// Effective returns the questions to present for the snapshot, in order.
// Options covered by a confident detected condition are removed, and a
// question left with at most one option is dropped. The input slice is not
// modified.
func Effective(questions []Question, snap Snapshot) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.Include != nil && !q.Include(snap) {
			continue
		}
		if snap.Analysis.Skips(q.ID) {
			continue
		}
		filtered, changed := filterOptions(q.Options, snap.Analysis)
		if changed {
			if len(filtered) <= 1 {
				continue
			}
			q.Options = filtered
		}
		out = append(out, q)
	}
	return out
}

func filterOptions(opts []models.Option, analysis *models.SkinAnalysis) ([]models.Option, bool) {
	if analysis == nil {
		return opts, false
	}
	kept := make([]models.Option, 0, len(opts))
	for _, o := range opts {
		if analysis.Covers(o.CoveredBy) {
			continue
		}
		kept = append(kept, o)
	}
	return kept, len(kept) != len(opts)
}
