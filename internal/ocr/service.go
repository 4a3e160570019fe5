package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/metrics"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
)

const (
	DefaultMaxRounds       = 4
	DefaultTimeout         = 70 * time.Second
	DefaultMaxOutputTokens = 8192

	// IntroInstruction opens the user turn ahead of the images
	IntroInstruction = "Process the attached images in order."
	// ContinueInstruction is sent after a truncated round
	ContinueInstruction = "Continue exactly after the last line you wrote. Do not repeat any earlier line, and keep going until the concluding text is finished."
)

var (
	ErrNoImages    = errors.New("no images provided")
	ErrEmptyOutput = errors.New("empty model output")
	ErrTimeout     = errors.New("upstream request timed out")
)

// truncationMarkers are the finish reasons providers use for a length cutoff
var truncationMarkers = map[string]struct{}{
	"length":            {},
	"max_tokens":        {},
	"max_output_tokens": {},
	"model_length":      {},
}

// IsTruncated reports whether a finish reason signals that the output was
// cut off by a token or length ceiling.
func IsTruncated(finishReason string) bool {
	_, ok := truncationMarkers[strings.ToLower(strings.TrimSpace(finishReason))]
	return ok
}

// Options holds the per-process orchestration settings
type Options struct {
	SystemPrompt    string
	MaxRounds       int
	Timeout         time.Duration
	MaxOutputTokens int
}

// Service runs the multi-round OCR completion against one provider.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	provider providers.Provider
	opts     Options
}

// NewService creates a new OCR service
func NewService(provider providers.Provider, opts Options) *Service {
	if opts.MaxRounds < 1 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return &Service{provider: provider, opts: opts}
}

// Provider returns the provider the service calls
func (s *Service) Provider() providers.Provider { return s.provider }

// Round is the outcome of one upstream call
type Round struct {
	Index        int
	Text         string
	FinishReason string
	Truncated    bool
	Duration     time.Duration
}

// Result is the accumulated output of every round
type Result struct {
	Text          string
	FinishReasons []string
	Rounds        []Round
}

type state int

const (
	stateRequesting state = iota
	stateTruncated
	stateComplete
	stateFailed
)

// transcript is the append-only record of completed rounds. with returns a
// new transcript and leaves the receiver untouched.
type transcript struct {
	rounds []Round
}

func (t transcript) with(r Round) transcript {
	rounds := make([]Round, len(t.rounds), len(t.rounds)+1)
	copy(rounds, t.rounds)
	return transcript{rounds: append(rounds, r)}
}

func (t transcript) len() int { return len(t.rounds) }

func (t transcript) text() string {
	texts := make([]string, len(t.rounds))
	for i, r := range t.rounds {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n")
}

func (t transcript) finishReasons() []string {
	reasons := make([]string, len(t.rounds))
	for i, r := range t.rounds {
		reasons[i] = r.FinishReason
	}
	return reasons
}

// messages returns the conversation for the next round: the opening user
// turn followed by an assistant/continue pair for every round so far.
func (t transcript) messages(opening providers.Message) []providers.Message {
	msgs := make([]providers.Message, 0, 1+2*len(t.rounds))
	msgs = append(msgs, opening)
	for _, r := range t.rounds {
		msgs = append(msgs,
			providers.Message{Role: providers.RoleAssistant, Parts: []providers.Part{providers.TextPart(r.Text)}},
			providers.Message{Role: providers.RoleUser, Parts: []providers.Part{providers.TextPart(ContinueInstruction)}},
		)
	}
	return msgs
}

// next decides the state after a round. Reaching the round cap while still
// truncated completes with the partial text.
func next(r Round, completed, maxRounds int) state {
	if !r.Truncated {
		return stateComplete
	}
	if completed >= maxRounds {
		return stateComplete
	}
	return stateTruncated
}

// Extract runs rounds until the provider finishes cleanly or the round cap
// is reached, and returns the concatenated output.
func (s *Service) Extract(ctx context.Context, images []dataurl.Image) (*Result, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	opening := providers.Message{Role: providers.RoleUser, Parts: []providers.Part{providers.TextPart(IntroInstruction)}}
	for _, img := range images {
		opening.Parts = append(opening.Parts, providers.ImagePart(img.String()))
	}

	var (
		tr      transcript
		lastErr error
	)
	st := stateRequesting
	for {
		switch st {
		case stateRequesting:
			round, err := s.runRound(ctx, tr.len(), tr.messages(opening))
			if err != nil {
				lastErr = err
				st = stateFailed
				continue
			}
			tr = tr.with(round)
			st = next(round, tr.len(), s.opts.MaxRounds)

		case stateTruncated:
			slog.Info("Model output truncated, requesting continuation",
				"provider", s.provider.Name(), "round", tr.len(), "max_rounds", s.opts.MaxRounds)
			st = stateRequesting

		case stateComplete:
			metrics.ObserveRounds(tr.len())
			last := tr.rounds[tr.len()-1]
			if last.Truncated {
				slog.Warn("Round cap reached with truncated output", "provider", s.provider.Name(), "rounds", tr.len())
			}
			result := &Result{
				Text:          tr.text(),
				FinishReasons: tr.finishReasons(),
				Rounds:        tr.rounds,
			}
			if strings.TrimSpace(result.Text) == "" {
				return result, fmt.Errorf("%w after %d round(s), finish reasons %v", ErrEmptyOutput, tr.len(), result.FinishReasons)
			}
			return result, nil

		case stateFailed:
			metrics.ObserveRounds(tr.len() + 1)
			return nil, lastErr
		}
	}
}

func (s *Service) runRound(ctx context.Context, index int, messages []providers.Message) (Round, error) {
	roundCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req := providers.Request{
		System:          s.opts.SystemPrompt,
		Messages:        messages,
		Temperature:     0,
		MaxOutputTokens: s.opts.MaxOutputTokens,
	}

	start := time.Now()
	completion, err := s.provider.Complete(roundCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveRoundError(s.provider.Name(), s.provider.Model(), elapsed)
		// Only our own deadline counts as a timeout; a cancelled parent is passed through.
		if errors.Is(roundCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Round{}, fmt.Errorf("%w after %s in round %d: %v", ErrTimeout, s.opts.Timeout, index+1, err)
		}
		return Round{}, fmt.Errorf("round %d: %w", index+1, err)
	}

	round := Round{
		Index:        index,
		Text:         providers.Normalize(completion.Content),
		FinishReason: completion.FinishReason,
		Truncated:    IsTruncated(completion.FinishReason),
		Duration:     elapsed,
	}
	metrics.ObserveRound(s.provider.Name(), s.provider.Model(), round.FinishReason, elapsed)
	slog.Debug("Round completed",
		"provider", s.provider.Name(),
		"round", index+1,
		"finish_reason", round.FinishReason,
		"length", len(round.Text),
		"duration", elapsed)

	return round, nil
}
