// Package analysis turns an uploaded face photo into a SkinAnalysis used to
// trim the intake quiz.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
)

var (
	// ErrEmptyImage is returned when the image payload has no bytes.
	ErrEmptyImage = errors.New("image is empty")
	// ErrNoConditions is returned when an analysis carries no detected condition.
	ErrNoConditions = errors.New("analysis has no detected conditions")
	// ErrInvalidSkinType is returned for skin types outside the known set.
	ErrInvalidSkinType = errors.New("invalid skin type")
)

// Skin types an analyzer may report.
const (
	SkinTypeOily        = "oily"
	SkinTypeDry         = "dry"
	SkinTypeCombination = "combination"
	SkinTypeNormal      = "normal"
	SkinTypeSensitive   = "sensitive"
)

// SkinTypes lists the reportable skin types in a fixed order.
var SkinTypes = []string{SkinTypeOily, SkinTypeDry, SkinTypeCombination, SkinTypeNormal, SkinTypeSensitive}

// Analyzer produces a skin analysis for an image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (models.SkinAnalysis, error)
}

// Opts holds analyzer configuration shared by implementations.
type Opts struct {
	Delay  time.Duration
	APIKey string
	Model  string
}

// Option configures an analyzer.
type Option func(*Opts)

// WithDelay adds an artificial delay before the mock verdict is returned.
func WithDelay(d time.Duration) Option {
	return func(o *Opts) { o.Delay = d }
}

// WithAPIKey sets the OpenAI API key for GenAIAnalyzer.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the vision model used by GenAIAnalyzer.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// IsValidSkinType reports whether s is a known skin type.
func IsValidSkinType(s string) bool {
	for _, t := range SkinTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Validate checks a complete analysis result.
func Validate(a models.SkinAnalysis) error {
	if !IsValidSkinType(a.SkinType) {
		return fmt.Errorf("%w: %q", ErrInvalidSkinType, a.SkinType)
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return fmt.Errorf("%w: %d", models.ErrInvalidConfidence, a.Confidence)
	}
	if len(a.DetectedConditions) == 0 {
		return ErrNoConditions
	}
	for i, c := range a.DetectedConditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}
