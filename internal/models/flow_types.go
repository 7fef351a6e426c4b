// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents a specific type of widget flow
type FlowType string

// StateType represents a specific state within a flow
type StateType string

// DataKey represents a key for storing state-specific data
type DataKey string

// Flow type constants.
const (
	FlowTypeSkincare FlowType = "skincare"
)

// Widget step constants. A session moves through these in order and returns
// to StateTrigger when the widget is closed.
const (
	StateTrigger         StateType = "trigger"
	StatePhoto           StateType = "photo"
	StateQuiz            StateType = "quiz"
	StateRecommendations StateType = "recommendations"
	StateRoutine         StateType = "routine"
)

// Data key constants for the skincare flow.
const (
	DataKeyAnswers         DataKey = "answers"         // JSON-encoded AnswerSet
	DataKeyAnalysis        DataKey = "analysis"        // JSON-encoded SkinAnalysis
	DataKeyPhotoMode       DataKey = "photoMode"       // "true" when the session started with a photo step
	DataKeySelectedPackage DataKey = "selectedPackage" // combo key chosen for the routine builder
)

// IsValidState checks if the given state is a known widget step.
func IsValidState(s StateType) bool {
	switch s {
	case StateTrigger, StatePhoto, StateQuiz, StateRecommendations, StateRoutine:
		return true
	default:
		return false
	}
}
