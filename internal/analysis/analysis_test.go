package analysis

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func TestMockAnalyzer_Deterministic(t *testing.T) {
	m := NewMockAnalyzer()
	img := []byte("a selfie taken in good light")
	first, err := m.Analyze(context.Background(), img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := m.Analyze(context.Background(), img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same image produced different analyses:\n%+v\n%+v", first, second)
	}
}

func TestMockAnalyzer_ResultsAreValid(t *testing.T) {
	m := NewMockAnalyzer()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		img := []byte(fmt.Sprintf("photo-%d", i))
		a, err := m.Analyze(context.Background(), img)
		if err != nil {
			t.Fatalf("image %d: unexpected error: %v", i, err)
		}
		if err := Validate(a); err != nil {
			t.Errorf("image %d: invalid analysis %+v: %v", i, a, err)
		}
		if a.Confidence < 80 || a.Confidence > 99 {
			t.Errorf("image %d: confidence %d out of range", i, a.Confidence)
		}
		if len(a.Characteristics) != 3 {
			t.Errorf("image %d: expected 3 characteristics, got %v", i, a.Characteristics)
		}
		seen[a.SkinType] = true
	}
	for _, st := range SkinTypes {
		if !seen[st] {
			t.Errorf("skin type %q never produced across 200 images", st)
		}
	}
}

func TestMockAnalyzer_FallbackCondition(t *testing.T) {
	// normal skin with r1 >= 20 yields no rule-based conditions
	conds := detect(SkinTypeNormal, rolls{r1: 50, r2: 50, r3: 50, r4: 50})
	if len(conds) != 0 {
		t.Fatalf("expected no conditions, got %+v", conds)
	}
	if got := fallbackCategory[SkinTypeNormal]; got != models.ConditionDry {
		t.Errorf("fallback for normal = %q", got)
	}
}

func TestDetect_Rules(t *testing.T) {
	tests := []struct {
		name     string
		skinType string
		r        rolls
		want     []models.ConditionCategory
	}{
		{"oily acne and oiliness", SkinTypeOily, rolls{r1: 10, r2: 80, r3: 20, r4: 0}, []models.ConditionCategory{models.ConditionAcne, models.ConditionOily}},
		{"oily nothing", SkinTypeOily, rolls{r1: 90, r2: 0, r3: 90, r4: 0}, nil},
		{"dry with aging", SkinTypeDry, rolls{r1: 10, r2: 10, r3: 0, r4: 0}, []models.ConditionCategory{models.ConditionDry, models.ConditionAging}},
		{"combination", SkinTypeCombination, rolls{r1: 0, r2: 0, r3: 0, r4: 0}, []models.ConditionCategory{models.ConditionAcne, models.ConditionDry}},
		{"sensitive", SkinTypeSensitive, rolls{r1: 0, r2: 90, r3: 0, r4: 0}, []models.ConditionCategory{models.ConditionSensitive}},
		{"normal aging", SkinTypeNormal, rolls{r1: 5, r2: 0, r3: 0, r4: 0}, []models.ConditionCategory{models.ConditionAging}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds := detect(tt.skinType, tt.r)
			var got []models.ConditionCategory
			for _, c := range conds {
				got = append(got, c.Category)
				if err := c.Validate(); err != nil {
					t.Errorf("invalid condition %+v: %v", c, err)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect_OilyAcneSeverity(t *testing.T) {
	for _, tc := range []struct {
		r2   int
		want models.Severity
	}{{0, models.SeverityMild}, {29, models.SeverityMild}, {30, models.SeverityModerate}, {74, models.SeverityModerate}, {75, models.SeveritySevere}} {
		conds := detect(SkinTypeOily, rolls{r1: 0, r2: tc.r2, r3: 99})
		if len(conds) != 1 || conds[0].Severity != tc.want {
			t.Errorf("r2=%d: got %+v, want %s", tc.r2, conds, tc.want)
		}
	}
}

func TestMockAnalyzer_EmptyImage(t *testing.T) {
	_, err := NewMockAnalyzer().Analyze(context.Background(), nil)
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
}

func TestMockAnalyzer_DelayHonorsCancel(t *testing.T) {
	m := NewMockAnalyzer(WithDelay(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Analyze(ctx, []byte("img"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMockAnalyzer_ShortDelay(t *testing.T) {
	m := NewMockAnalyzer(WithDelay(5 * time.Millisecond))
	start := time.Now()
	if _, err := m.Analyze(context.Background(), []byte("img")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("delay was not applied")
	}
}

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	called int
}

func (m *mockChatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.called++
	return m.resp, m.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

const validVerdict = `{"skin_type":"Oily","confidence":88,"characteristics":["shine"],
"detected_conditions":[{"category":"acne","severity":"moderate","confidence":91,"areas":["chin"]}]}`

func TestGenAIAnalyzer_Success(t *testing.T) {
	chat := &mockChatService{resp: completion("```json\n" + validVerdict + "\n```")}
	g := &GenAIAnalyzer{chat: chat, model: DefaultVisionModel}
	a, err := g.Analyze(context.Background(), []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.SkinType != "oily" || a.Confidence != 88 {
		t.Errorf("unexpected analysis %+v", a)
	}
	if !a.Covers(models.ConditionAcne) {
		t.Error("expected acne to be covered")
	}
	if chat.called != 1 {
		t.Errorf("expected one call, got %d", chat.called)
	}
}

func TestGenAIAnalyzer_Errors(t *testing.T) {
	tests := []struct {
		name string
		chat *mockChatService
		want string
	}{
		{"service error", &mockChatService{err: errors.New("service failure")}, "service failure"},
		{"no choices", &mockChatService{resp: &openai.ChatCompletion{}}, ErrNoChoicesReturned.Error()},
		{"not json", &mockChatService{resp: completion("I think your skin is oily")}, "decode verdict"},
		{"bad category", &mockChatService{resp: completion(`{"skin_type":"dry","confidence":90,"detected_conditions":[{"category":"freckles","severity":"mild","confidence":50}]}`)}, "invalid condition category"},
		{"no conditions", &mockChatService{resp: completion(`{"skin_type":"dry","confidence":90}`)}, ErrNoConditions.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &GenAIAnalyzer{chat: tt.chat, model: DefaultVisionModel}
			_, err := g.Analyze(context.Background(), []byte("img"))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestGenAIAnalyzer_EmptyImageSkipsCall(t *testing.T) {
	chat := &mockChatService{resp: completion(validVerdict)}
	g := &GenAIAnalyzer{chat: chat, model: DefaultVisionModel}
	if _, err := g.Analyze(context.Background(), nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
	if chat.called != 0 {
		t.Error("chat service should not be called for empty images")
	}
}

func TestNewGenAIAnalyzer_NoKey(t *testing.T) {
	if _, err := NewGenAIAnalyzer(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	good := models.SkinAnalysis{
		SkinType:   SkinTypeDry,
		Confidence: 85,
		DetectedConditions: []models.DetectedCondition{
			{Category: models.ConditionDry, Severity: models.SeverityMild, Confidence: 60},
		},
	}
	if err := Validate(good); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	bad := good
	bad.SkinType = "scaly"
	if err := Validate(bad); !errors.Is(err, ErrInvalidSkinType) {
		t.Errorf("expected ErrInvalidSkinType, got %v", err)
	}
	bad = good
	bad.Confidence = 101
	if err := Validate(bad); !errors.Is(err, models.ErrInvalidConfidence) {
		t.Errorf("expected ErrInvalidConfidence, got %v", err)
	}
}
