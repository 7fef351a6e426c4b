package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	// ErrMissingAPIKey is returned when GenAIAnalyzer is built without a key.
	ErrMissingAPIKey = errors.New("OpenAI API key is not set")
	// ErrNoChoicesReturned is returned when the model answers with no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// DefaultVisionModel is used when no model is configured.
const DefaultVisionModel = openai.ChatModelGPT4oMini

const analysisSystemPrompt = `You are a skincare assistant looking at a face photo.
Reply with a single JSON object and nothing else, shaped as:
{"skin_type": "oily|dry|combination|normal|sensitive",
 "confidence": 0-100,
 "characteristics": ["short phrase", ...],
 "detected_conditions": [{"category": "acne|oily|dry|sensitive|aging",
   "severity": "mild|moderate|severe", "confidence": 0-100, "areas": ["..."]}],
 "skip_questions": []}
Report at least one condition.`

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// GenAIAnalyzer asks an OpenAI vision model for a skin analysis.
type GenAIAnalyzer struct {
	chat  chatService
	model openai.ChatModel
}

// NewGenAIAnalyzer creates an analyzer backed by the OpenAI chat API.
func NewGenAIAnalyzer(opts ...Option) (*GenAIAnalyzer, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		slog.Error("NewGenAIAnalyzer: API key not set")
		return nil, ErrMissingAPIKey
	}
	model := DefaultVisionModel
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("NewGenAIAnalyzer: client created", "model", model)
	return &GenAIAnalyzer{chat: &cli.Chat.Completions, model: model}, nil
}

// Analyze implements Analyzer.
func (g *GenAIAnalyzer) Analyze(ctx context.Context, image []byte) (models.SkinAnalysis, error) {
	if len(image) == 0 {
		return models.SkinAnalysis{}, ErrEmptyImage
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))

	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(analysisSystemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("Analyze this face photo."),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	}
	slog.Debug("GenAIAnalyzer.Analyze: sending request", "model", g.model, "bytes", len(image))
	resp, err := g.chat.New(ctx, params)
	if err != nil {
		slog.Error("GenAIAnalyzer.Analyze: chat completion failed", "error", err)
		return models.SkinAnalysis{}, fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Error("GenAIAnalyzer.Analyze: no choices returned")
		return models.SkinAnalysis{}, ErrNoChoicesReturned
	}

	result, err := ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("GenAIAnalyzer.Analyze: invalid verdict", "error", err)
		return models.SkinAnalysis{}, err
	}
	slog.Info("GenAIAnalyzer.Analyze: analysis complete", "skinType", result.SkinType, "conditions", len(result.DetectedConditions))
	return result, nil
}

// ParseVerdict decodes and validates a model reply. Markdown code fences
// around the JSON are tolerated.
func ParseVerdict(content string) (models.SkinAnalysis, error) {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(body, "```")
		body = strings.TrimSpace(body)
	}
	var a models.SkinAnalysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return models.SkinAnalysis{}, fmt.Errorf("decode verdict: %w", err)
	}
	a.SkinType = strings.ToLower(strings.TrimSpace(a.SkinType))
	if err := Validate(a); err != nil {
		return models.SkinAnalysis{}, fmt.Errorf("validate verdict: %w", err)
	}
	return a, nil
}
