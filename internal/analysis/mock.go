package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/cespare/xxhash/v2"
)

var characteristics = map[string][]string{
	SkinTypeOily:        {"Visible pores", "Shine in T-zone", "Occasional breakouts"},
	SkinTypeDry:         {"Tight feeling", "Flaky patches", "Fine lines"},
	SkinTypeCombination: {"Oily T-zone", "Dry cheeks", "Varied texture"},
	SkinTypeNormal:      {"Balanced moisture", "Smooth texture", "Minimal concerns"},
	SkinTypeSensitive:   {"Easily irritated", "Redness", "Reactive to products"},
}

// fallbackCategory labels the low-confidence condition reported when no rule fires.
var fallbackCategory = map[string]models.ConditionCategory{
	SkinTypeOily:        models.ConditionOily,
	SkinTypeDry:         models.ConditionDry,
	SkinTypeCombination: models.ConditionOily,
	SkinTypeNormal:      models.ConditionDry,
	SkinTypeSensitive:   models.ConditionSensitive,
}

// MockAnalyzer derives a plausible analysis from a content hash of the image.
// The same bytes always produce the same analysis.
type MockAnalyzer struct {
	delay time.Duration
}

// NewMockAnalyzer creates a MockAnalyzer. Only WithDelay is honored.
func NewMockAnalyzer(opts ...Option) *MockAnalyzer {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MockAnalyzer{delay: cfg.Delay}
}

// rolls holds hash-derived values in [0,100).
type rolls struct {
	r1, r2, r3, r4 int
}

func rollsFrom(seed uint64) rolls {
	return rolls{
		r1: int((seed >> 16) % 100),
		r2: int((seed >> 24) % 100),
		r3: int((seed >> 32) % 100),
		r4: int((seed >> 40) % 100),
	}
}

// Analyze implements Analyzer.
func (m *MockAnalyzer) Analyze(ctx context.Context, image []byte) (models.SkinAnalysis, error) {
	if len(image) == 0 {
		return models.SkinAnalysis{}, ErrEmptyImage
	}
	slog.Debug("MockAnalyzer.Analyze: analyzing image", "bytes", len(image))

	if m.delay > 0 {
		t := time.NewTimer(m.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			slog.Warn("MockAnalyzer.Analyze: cancelled", "error", ctx.Err())
			return models.SkinAnalysis{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return models.SkinAnalysis{}, err
	}

	seed := xxhash.Sum64(image)
	skinType := SkinTypes[seed%uint64(len(SkinTypes))]
	r := rollsFrom(seed)

	result := models.SkinAnalysis{
		SkinType:        skinType,
		Confidence:      80 + int((seed>>8)%20),
		Characteristics: append([]string(nil), characteristics[skinType]...),
	}
	result.DetectedConditions = detect(skinType, r)
	if len(result.DetectedConditions) == 0 {
		result.DetectedConditions = []models.DetectedCondition{{
			Category:   fallbackCategory[skinType],
			Severity:   models.SeverityMild,
			Confidence: 50 + r.r4%20,
			Areas:      []string{"overall"},
		}}
	}

	slog.Info("MockAnalyzer.Analyze: analysis complete", "skinType", result.SkinType, "confidence", result.Confidence, "conditions", len(result.DetectedConditions))
	return result, nil
}

func detect(skinType string, r rolls) []models.DetectedCondition {
	var out []models.DetectedCondition
	switch skinType {
	case SkinTypeOily:
		if r.r1 < 60 {
			sev := models.SeveritySevere
			if r.r2 < 30 {
				sev = models.SeverityMild
			} else if r.r2 < 75 {
				sev = models.SeverityModerate
			}
			out = append(out, models.DetectedCondition{
				Category: models.ConditionAcne, Severity: sev,
				Confidence: 60 + r.r3%40, Areas: []string{"forehead", "nose", "chin"},
			})
		}
		if r.r3 < 50 {
			out = append(out, models.DetectedCondition{
				Category: models.ConditionOily, Severity: models.SeverityModerate,
				Confidence: 70 + r.r4%30, Areas: []string{"T-zone"},
			})
		}
	case SkinTypeDry:
		if r.r1 < 55 {
			sev := models.SeverityModerate
			if r.r2 < 50 {
				sev = models.SeverityMild
			}
			out = append(out, models.DetectedCondition{
				Category: models.ConditionDry, Severity: sev,
				Confidence: 65 + r.r3%35, Areas: []string{"cheeks"},
			})
		}
		if r.r2 < 35 {
			out = append(out, models.DetectedCondition{
				Category: models.ConditionAging, Severity: models.SeverityMild,
				Confidence: 55 + r.r4%40, Areas: []string{"eyes", "forehead"},
			})
		}
	case SkinTypeCombination:
		if r.r1 < 45 {
			sev := models.SeverityModerate
			if r.r2 < 60 {
				sev = models.SeverityMild
			}
			out = append(out, models.DetectedCondition{
				Category: models.ConditionAcne, Severity: sev,
				Confidence: 60 + r.r3%35, Areas: []string{"T-zone"},
			})
		}
		if r.r2 < 40 {
			out = append(out, models.DetectedCondition{
				Category: models.ConditionDry, Severity: models.SeverityMild,
				Confidence: 50 + r.r4%40, Areas: []string{"cheeks"},
			})
		}
	case SkinTypeSensitive:
		if r.r1 < 65 {
			sev := models.SeverityMild
			if r.r2 >= 50 {
				sev = models.SeverityModerate
			}
			out = append(out, models.DetectedCondition{
				Category: models.ConditionSensitive, Severity: sev,
				Confidence: 65 + r.r3%35, Areas: []string{"cheeks", "nose"},
			})
		}
		if r.r2 < 25 {
			out = append(out, models.DetectedCondition{
				Category: models.ConditionAcne, Severity: models.SeverityMild,
				Confidence: 50 + r.r4%30, Areas: []string{"chin"},
			})
		}
	case SkinTypeNormal:
		if r.r1 < 20 {
			out = append(out, models.DetectedCondition{
				Category: models.ConditionAging, Severity: models.SeverityMild,
				Confidence: 50 + r.r3%30, Areas: []string{"eyes"},
			})
		}
	}
	return out
}
