// Package models defines the core data structures for SkinPipe.
//
// It includes the questionnaire, analysis and recommendation types shared
// across modules, along with the JSON envelope returned by the API.
package models

import (
	"errors"
	"time"
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusCompleted indicates the request finished the questionnaire.
	APIStatusCompleted APIStatus = "completed"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// Error variables for request validation
var (
	ErrEmptyQuestionID  = errors.New("question_id is required")
	ErrEmptyValue       = errors.New("value is required")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrInvalidClockTime = errors.New("time must be in HH:MM format")
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Completed creates a response for the request that answered the last question.
func Completed(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusCompleted).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Recorded creates a recorded API response.
func Recorded() APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		Build()
}

// StartSessionRequest is the payload for POST /sessions.
type StartSessionRequest struct {
	Photo bool `json:"photo,omitempty"` // start with the photo analysis step
}

// AnswerRequest is the payload for selecting an option of the current question.
type AnswerRequest struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

// Validate checks that both fields are present.
func (r *AnswerRequest) Validate() error {
	if r.QuestionID == "" {
		return ErrEmptyQuestionID
	}
	if r.Value == "" {
		return ErrEmptyValue
	}
	return nil
}

// ResolveRequest is the payload for POST /recommendations/resolve.
type ResolveRequest struct {
	Answers AnswerSet `json:"answers"`
}

// ShareRequest is the payload for sharing a recommendation.
type ShareRequest struct {
	To string `json:"to"`
}

// Validate checks the recipient is present.
func (r *ShareRequest) Validate() error {
	if r.To == "" {
		return ErrEmptyRecipient
	}
	return nil
}

// PackageRequest is the payload for the "build my routine" action.
type PackageRequest struct {
	ComboKey ComboKey `json:"combo_key,omitempty"` // defaults to the session's resolved key
}

// StepProductRequest is the payload for choosing a product for a routine step.
type StepProductRequest struct {
	ProductID string `json:"product_id"` // empty clears the step
}

// ContactRequest is the payload for setting the reminder recipient.
type ContactRequest struct {
	Phone string `json:"phone"`
}

// ValidateClockTime reports whether s is a valid HH:MM time.
func ValidateClockTime(s string) error {
	if len(s) != 5 {
		return ErrInvalidClockTime
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return ErrInvalidClockTime
	}
	return nil
}
