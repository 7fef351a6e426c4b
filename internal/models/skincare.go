package models

import (
	"errors"
	"fmt"
)

// Answer keys used by classification.
const (
	AnswerConcern  = "concern"
	AnswerSkinType = "skinType"
)

// AnswerSet maps a question identifier to the chosen option value.
type AnswerSet map[string]string

// Clone returns an independent copy of the answer set. A nil set clones to an empty one.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Get returns the value for key, or "" when unanswered.
func (a AnswerSet) Get(key string) string {
	if a == nil {
		return ""
	}
	return a[key]
}

// Has reports whether key has been answered.
func (a AnswerSet) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Option is one selectable answer of a question.
type Option struct {
	Value       string            `json:"value"`
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	CoveredBy   ConditionCategory `json:"-"` // detected condition that makes this option redundant
}

// ConditionCategory is the kind of skin condition an analyzer can report.
type ConditionCategory string

const (
	ConditionAcne      ConditionCategory = "acne"
	ConditionOily      ConditionCategory = "oily"
	ConditionDry       ConditionCategory = "dry"
	ConditionSensitive ConditionCategory = "sensitive"
	ConditionAging     ConditionCategory = "aging"
)

// Severity grades a detected condition.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// HighConfidenceThreshold is the confidence above which a non-mild detected
// condition is treated as already known.
const HighConfidenceThreshold = 80

var (
	ErrInvalidCategory   = errors.New("invalid condition category")
	ErrInvalidSeverity   = errors.New("invalid condition severity")
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 100")
)

// IsValidConditionCategory checks if the given category is supported.
func IsValidConditionCategory(c ConditionCategory) bool {
	switch c {
	case ConditionAcne, ConditionOily, ConditionDry, ConditionSensitive, ConditionAging:
		return true
	default:
		return false
	}
}

// IsValidSeverity checks if the given severity is supported.
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

// DetectedCondition is one inferred skin condition.
type DetectedCondition struct {
	Category   ConditionCategory `json:"category"`
	Severity   Severity          `json:"severity"`
	Confidence int               `json:"confidence"`
	Areas      []string          `json:"areas"`
}

// Validate checks the condition's enumerations and bounds.
func (c DetectedCondition) Validate() error {
	if !IsValidConditionCategory(c.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c.Category)
	}
	if !IsValidSeverity(c.Severity) {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, c.Severity)
	}
	if c.Confidence < 0 || c.Confidence > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidConfidence, c.Confidence)
	}
	return nil
}

// Covers reports whether the condition is confident and serious enough to
// make an option for its category redundant.
func (c DetectedCondition) Covers(category ConditionCategory) bool {
	return c.Category == category &&
		c.Confidence > HighConfidenceThreshold &&
		c.Severity != SeverityMild
}

// SkinAnalysis is the output of a photo analysis.
type SkinAnalysis struct {
	SkinType           string              `json:"skin_type"`
	Confidence         int                 `json:"confidence"`
	Characteristics    []string            `json:"characteristics"`
	DetectedConditions []DetectedCondition `json:"detected_conditions"`
	SkipQuestions      []string            `json:"skip_questions,omitempty"`
}

// Covers reports whether any detected condition covers the category.
func (a *SkinAnalysis) Covers(category ConditionCategory) bool {
	if a == nil || category == "" {
		return false
	}
	for _, c := range a.DetectedConditions {
		if c.Covers(category) {
			return true
		}
	}
	return false
}

// Skips reports whether the analysis asks for the question to be skipped.
func (a *SkinAnalysis) Skips(questionID string) bool {
	if a == nil {
		return false
	}
	for _, id := range a.SkipQuestions {
		if id == questionID {
			return true
		}
	}
	return false
}

// ComboKey is the category label that selects a recommendation bundle.
type ComboKey string

const (
	ComboOily         ComboKey = "oily"
	ComboDry          ComboKey = "dry"
	ComboPigmentation ComboKey = "pigmentation"
	ComboDull         ComboKey = "dull"
	ComboAging        ComboKey = "aging"
	ComboSensitive    ComboKey = "sensitive"
)

// IsValidComboKey checks if the given key is one of the closed set.
func IsValidComboKey(k ComboKey) bool {
	switch k {
	case ComboOily, ComboDry, ComboPigmentation, ComboDull, ComboAging, ComboSensitive:
		return true
	default:
		return false
	}
}

// Product is one entry of a recommendation bundle.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Bundle is a static named set of product suggestions.
type Bundle struct {
	Name     string    `json:"name"`
	Products []Product `json:"products"`
	Link     string    `json:"link,omitempty"`
}

// Recommendation pairs a combo key with its resolved bundle.
type Recommendation struct {
	ComboKey ComboKey `json:"combo_key"`
	Bundle   Bundle   `json:"bundle"`
}
