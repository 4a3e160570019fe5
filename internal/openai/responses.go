package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
)

// Responses is a provider for the OpenAI Responses API. When PromptID is
// set the request references a prompt stored on the OpenAI side instead of
// (or in addition to) the system instruction.
type Responses struct {
	OpenAI
	promptID      string
	promptVersion string
}

// NewResponses returns a Responses API provider
func NewResponses(opts Options, promptID, promptVersion string) *Responses {
	if opts.Name == "" {
		opts.Name = "openai-responses"
	}
	return &Responses{
		OpenAI:        *New(opts),
		promptID:      promptID,
		promptVersion: promptVersion,
	}
}

type responsesPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesInput struct {
	Role    string          `json:"role"`
	Content []responsesPart `json:"content"`
}

type promptRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

type reasoning struct {
	Effort string `json:"effort"`
}

type responsesRequest struct {
	Model           string           `json:"model"`
	Instructions    string           `json:"instructions,omitempty"`
	Prompt          *promptRef       `json:"prompt,omitempty"`
	Input           []responsesInput `json:"input"`
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Reasoning       *reasoning       `json:"reasoning,omitempty"`
}

type responsesEnvelope struct {
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string                  `json:"type"`
		Role    string                  `json:"role,omitempty"`
		Content []providers.ContentPart `json:"content"`
	} `json:"output"`
}

// Complete sends one Responses API request
func (r *Responses) Complete(ctx context.Context, req providers.Request) (providers.Completion, error) {
	requestBody, err := json.Marshal(r.buildRequest(req))
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/responses", bytes.NewReader(requestBody))
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return providers.Completion{}, &providers.APIError{Provider: r.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var env responsesEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return providers.Completion{}, fmt.Errorf("failed to decode response body: %w", err)
	}

	completion := providers.Completion{
		Content:      responsesContent(env),
		FinishReason: env.Status,
	}
	if env.Status == "incomplete" && env.IncompleteDetails != nil && env.IncompleteDetails.Reason != "" {
		completion.FinishReason = env.IncompleteDetails.Reason
	}

	slog.Debug("Response received", "provider", r.name, "model", r.model, "status", env.Status, "finish_reason", completion.FinishReason)
	return completion, nil
}

// responsesContent prefers the output_text convenience field and otherwise
// collects the text segments of every output message in order.
func responsesContent(env responsesEnvelope) providers.Content {
	if strings.TrimSpace(env.OutputText) != "" {
		return providers.PlainText(env.OutputText)
	}

	var parts providers.PartList
	for _, o := range env.Output {
		if o.Type != "" && o.Type != "message" {
			continue
		}
		for _, c := range o.Content {
			if c.Type == "output_text" || c.Type == "text" || c.Type == "" {
				parts = append(parts, c)
			}
		}
	}
	return parts
}

func (r *Responses) buildRequest(req providers.Request) responsesRequest {
	input := make([]responsesInput, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == providers.RoleAssistant {
			input = append(input, responsesInput{
				Role:    "assistant",
				Content: []responsesPart{{Type: "output_text", Text: m.Text()}},
			})
			continue
		}

		content := make([]responsesPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.IsImage() {
				content = append(content, responsesPart{Type: "input_image", ImageURL: p.ImageURL})
			} else {
				content = append(content, responsesPart{Type: "input_text", Text: p.Text})
			}
		}
		input = append(input, responsesInput{Role: string(m.Role), Content: content})
	}

	out := responsesRequest{
		Model:           r.model,
		Instructions:    req.System,
		Input:           input,
		Temperature:     r.temperature(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if r.promptID != "" {
		out.Prompt = &promptRef{ID: r.promptID, Version: r.promptVersion}
	}
	if r.reasoningEffort != "" {
		out.Reasoning = &reasoning{Effort: r.reasoningEffort}
	}
	return out
}
