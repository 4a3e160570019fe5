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

// Options configures an OpenAI-compatible client
type Options struct {
	Name            string // reported provider name, e.g. "openai" or "gemini-openai"
	APIKey          string
	BaseURL         string
	Model           string
	ReasoningEffort string
	HTTPClient      *http.Client
}

// OpenAI is a provider for the chat completions API. Any endpoint that
// speaks the same protocol (the Gemini OpenAI-compatible endpoint included)
// can be targeted through BaseURL.
type OpenAI struct {
	name            string
	apiKey          string
	baseURL         string
	model           string
	reasoningEffort string
	httpClient      *http.Client
}

// New returns a new chat completions provider
func New(opts Options) *OpenAI {
	if opts.Name == "" {
		opts.Name = "openai"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &OpenAI{
		name:            opts.Name,
		apiKey:          opts.APIKey,
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		model:           opts.Model,
		reasoningEffort: opts.ReasoningEffort,
		httpClient:      opts.HTTPClient,
	}
}

func (o *OpenAI) Name() string  { return o.name }
func (o *OpenAI) Model() string { return o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Temperature         *float64      `json:"temperature,omitempty"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	ReasoningEffort     string        `json:"reasoning_effort,omitempty"`
}

// reasoningFamilies are model name prefixes that reject any temperature but
// the default and take max_completion_tokens instead of max_tokens
var reasoningFamilies = []string{"o1", "o3", "o4", "gpt-5"}

func isReasoningModel(model string) bool {
	model = strings.ToLower(model)
	for _, f := range reasoningFamilies {
		if model == f || strings.HasPrefix(model, f+"-") {
			return true
		}
	}
	return false
}

// temperature returns nil when the target only accepts its default sampling
func (o *OpenAI) temperature(t float64) *float64 {
	if o.reasoningEffort != "" || isReasoningModel(o.model) {
		return nil
	}
	return &t
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one chat completion request
func (o *OpenAI) Complete(ctx context.Context, req providers.Request) (providers.Completion, error) {
	requestBody, err := json.Marshal(o.buildRequest(req))
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return providers.Completion{}, &providers.APIError{Provider: o.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return providers.Completion{}, fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return providers.Completion{}, fmt.Errorf("no choices returned from %s", o.name)
	}

	choice := response.Choices[0]
	slog.Debug("Chat completion received", "provider", o.name, "model", o.model, "finish_reason", choice.FinishReason)

	return providers.Completion{
		Content:      providers.DecodeContent(choice.Message.Content),
		FinishReason: choice.FinishReason,
	}, nil
}

func (o *OpenAI) buildRequest(req providers.Request) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}

	for _, m := range req.Messages {
		if m.Role == providers.RoleAssistant {
			messages = append(messages, chatMessage{Role: "assistant", Content: m.Text()})
			continue
		}

		parts := make([]chatPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.IsImage() {
				parts = append(parts, chatPart{Type: "image_url", ImageURL: &imageURL{URL: p.ImageURL}})
			} else {
				parts = append(parts, chatPart{Type: "text", Text: p.Text})
			}
		}
		messages = append(messages, chatMessage{Role: string(m.Role), Content: parts})
	}

	out := chatRequest{
		Model:           o.model,
		Messages:        messages,
		Temperature:     o.temperature(req.Temperature),
		ReasoningEffort: o.reasoningEffort,
	}
	if isReasoningModel(o.model) {
		out.MaxCompletionTokens = req.MaxOutputTokens
	} else {
		out.MaxTokens = req.MaxOutputTokens
	}
	return out
}
