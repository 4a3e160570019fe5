package ocr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
)

type scriptedStep struct {
	completion providers.Completion
	err        error
	delay      time.Duration
}

// scriptedProvider answers each call with the next step and records every request
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []providers.Request
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Complete(ctx context.Context, req providers.Request) (providers.Completion, error) {
	p.mu.Lock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if idx >= len(p.steps) {
		return providers.Completion{}, errors.New("unexpected extra call")
	}
	step := p.steps[idx]
	if step.delay > 0 {
		select {
		case <-time.After(step.delay):
		case <-ctx.Done():
			return providers.Completion{}, ctx.Err()
		}
	}
	return step.completion, step.err
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func text(s, finish string) scriptedStep {
	return scriptedStep{completion: providers.Completion{Content: providers.PlainText(s), FinishReason: finish}}
}

var testImage = dataurl.Image{MIMEType: "image/png", Payload: "iVBORw0KGgo="}

func TestIsTruncated(t *testing.T) {
	tests := []struct {
		reason string
		want   bool
	}{
		{"length", true},
		{"LENGTH", true},
		{"max_tokens", true},
		{"MAX_TOKENS", true},
		{"max_output_tokens", true},
		{"model_length", true},
		{" length ", true},
		{"stop", false},
		{"", false},
		{"safety", false},
		{"completed", false},
	}

	for _, tt := range tests {
		if got := IsTruncated(tt.reason); got != tt.want {
			t.Errorf("IsTruncated(%q) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}

func TestExtractContinuesUntilStop(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		text("row1", "length"),
		text("row2", "length"),
		text("row3", "stop"),
	}}
	svc := NewService(p, Options{SystemPrompt: "extract rows"})

	result, err := svc.Extract(context.Background(), []dataurl.Image{testImage})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if p.calls() != 3 {
		t.Fatalf("Expected 3 calls, got %d", p.calls())
	}
	if result.Text != "row1\nrow2\nrow3" {
		t.Errorf("Unexpected text %q", result.Text)
	}
	if strings.Join(result.FinishReasons, ",") != "length,length,stop" {
		t.Errorf("Unexpected finish reasons %v", result.FinishReasons)
	}
	if len(result.Rounds) != 3 || !result.Rounds[0].Truncated || result.Rounds[2].Truncated {
		t.Errorf("Unexpected rounds %+v", result.Rounds)
	}
}

func TestExtractBuildsContinuationHistory(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		text("part one", "max_tokens"),
		text("part two", "stop"),
	}}
	svc := NewService(p, Options{SystemPrompt: "extract rows", MaxOutputTokens: 1234})

	if _, err := svc.Extract(context.Background(), []dataurl.Image{testImage, testImage}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	first := p.requests[0]
	if first.System != "extract rows" || first.Temperature != 0 || first.MaxOutputTokens != 1234 {
		t.Errorf("Unexpected request settings: %+v", first)
	}
	if len(first.Messages) != 1 {
		t.Fatalf("Expected 1 message in first round, got %d", len(first.Messages))
	}
	opening := first.Messages[0]
	if opening.Role != providers.RoleUser || opening.Text() != IntroInstruction {
		t.Errorf("Unexpected opening turn: %+v", opening)
	}
	if len(opening.Images()) != 2 || opening.Images()[0] != testImage.String() {
		t.Errorf("Expected both images in order, got %v", opening.Images())
	}

	second := p.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("Expected 3 messages in second round, got %d", len(second))
	}
	if second[1].Role != providers.RoleAssistant || second[1].Text() != "part one" {
		t.Errorf("Expected partial output as assistant turn, got %+v", second[1])
	}
	if second[2].Role != providers.RoleUser || second[2].Text() != ContinueInstruction {
		t.Errorf("Expected continuation instruction, got %+v", second[2])
	}
	// the first round's request must not have been mutated
	if len(p.requests[0].Messages) != 1 {
		t.Errorf("First request was modified: %d messages", len(p.requests[0].Messages))
	}
}

func TestExtractStopsAtRoundCap(t *testing.T) {
	tests := []struct {
		name      string
		maxRounds int
		want      int
	}{
		{"default cap", 0, DefaultMaxRounds},
		{"single round", 1, 1},
		{"custom cap", 6, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := make([]scriptedStep, 10)
			for i := range steps {
				steps[i] = text("partial", "length")
			}
			p := &scriptedProvider{steps: steps}
			svc := NewService(p, Options{SystemPrompt: "x", MaxRounds: tt.maxRounds})

			result, err := svc.Extract(context.Background(), []dataurl.Image{testImage})
			if err != nil {
				t.Fatalf("Round cap should not be an error, got %v", err)
			}
			if p.calls() != tt.want {
				t.Errorf("Expected %d calls, got %d", tt.want, p.calls())
			}
			if len(result.FinishReasons) != tt.want {
				t.Errorf("Expected %d finish reasons, got %d", tt.want, len(result.FinishReasons))
			}
			if got := strings.Count(result.Text, "partial"); got != tt.want {
				t.Errorf("Expected %d fragments, got %d", tt.want, got)
			}
		})
	}
}

func TestExtractNormalizesPartLists(t *testing.T) {
	plain := &scriptedProvider{steps: []scriptedStep{text("a\nb", "stop")}}
	parts := &scriptedProvider{steps: []scriptedStep{{completion: providers.Completion{
		Content: providers.PartList{
			{Type: "text", Text: "a"},
			{Type: "text", Text: "b"},
		},
		FinishReason: "stop",
	}}}}

	r1, err := NewService(plain, Options{SystemPrompt: "x"}).Extract(context.Background(), []dataurl.Image{testImage})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	r2, err := NewService(parts, Options{SystemPrompt: "x"}).Extract(context.Background(), []dataurl.Image{testImage})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if r1.Text != r2.Text {
		t.Errorf("Expected identical text, got %q and %q", r1.Text, r2.Text)
	}
}

func TestExtractEmptyOutput(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		text("  ", "length"),
		text("\n\t", "stop"),
	}}
	svc := NewService(p, Options{SystemPrompt: "x"})

	_, err := svc.Extract(context.Background(), []dataurl.Image{testImage})
	if !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("Expected ErrEmptyOutput, got %v", err)
	}
	if p.calls() != 2 {
		t.Errorf("Expected 2 calls, got %d", p.calls())
	}
}

func TestExtractTimeout(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		{completion: providers.Completion{Content: providers.PlainText("late"), FinishReason: "stop"}, delay: time.Second},
	}}
	svc := NewService(p, Options{SystemPrompt: "x", Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.Extract(context.Background(), []dataurl.Image{testImage})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Extract did not return promptly: %s", time.Since(start))
	}
}

func TestExtractProviderError(t *testing.T) {
	apiErr := &providers.APIError{Provider: "scripted", StatusCode: 503, Body: "overloaded"}
	p := &scriptedProvider{steps: []scriptedStep{
		text("row1", "length"),
		{err: apiErr},
	}}
	svc := NewService(p, Options{SystemPrompt: "x"})

	_, err := svc.Extract(context.Background(), []dataurl.Image{testImage})
	var got *providers.APIError
	if !errors.As(err, &got) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if got.StatusCode != 503 {
		t.Errorf("Expected status 503, got %d", got.StatusCode)
	}
	if p.calls() != 2 {
		t.Errorf("Failed round must not be retried, got %d calls", p.calls())
	}
}

func TestExtractNoImages(t *testing.T) {
	p := &scriptedProvider{}
	svc := NewService(p, Options{SystemPrompt: "x"})

	if _, err := svc.Extract(context.Background(), nil); !errors.Is(err, ErrNoImages) {
		t.Fatalf("Expected ErrNoImages, got %v", err)
	}
	if p.calls() != 0 {
		t.Errorf("Expected no calls, got %d", p.calls())
	}
}

func TestTranscriptWithIsImmutable(t *testing.T) {
	var empty transcript
	one := empty.with(Round{Text: "a"})
	two := one.with(Round{Text: "b"})

	if empty.len() != 0 || one.len() != 1 || two.len() != 2 {
		t.Fatalf("Unexpected lengths %d %d %d", empty.len(), one.len(), two.len())
	}
	if one.text() != "a" || two.text() != "a\nb" {
		t.Errorf("Unexpected text %q %q", one.text(), two.text())
	}
}
