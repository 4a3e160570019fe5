package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
)

// Ollama is a provider for a local Ollama server
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New returns a new Ollama provider
func New(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.model }

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Complete sends one non-streaming /api/chat request
func (o *Ollama) Complete(ctx context.Context, req providers.Request) (providers.Completion, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msg := chatMessage{Role: string(m.Role), Content: m.Text()}
		// Ollama wants bare base64 payloads, not data URLs
		for _, u := range m.Images() {
			img, err := dataurl.Parse(u)
			if err != nil {
				return providers.Completion{}, err
			}
			msg.Images = append(msg.Images, img.Payload)
		}
		messages = append(messages, msg)
	}

	options := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxOutputTokens > 0 {
		options["num_predict"] = req.MaxOutputTokens
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":    o.model,
		"messages": messages,
		"stream":   false,
		"options":  options,
	})
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(requestBody))
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return providers.Completion{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return providers.Completion{}, &providers.APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		DoneReason string `json:"done_reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return providers.Completion{}, fmt.Errorf("failed to decode response body: %w", err)
	}

	return providers.Completion{
		Content:      providers.PlainText(response.Message.Content),
		FinishReason: response.DoneReason,
	}, nil
}
