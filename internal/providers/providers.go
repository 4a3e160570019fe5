package providers

import (
	"context"
	"fmt"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one element of a message: either text or an image data URL
type Part struct {
	Text     string
	ImageURL string
}

// TextPart returns a text part
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart returns an image part carrying a data URL
func ImagePart(dataURL string) Part {
	return Part{ImageURL: dataURL}
}

// IsImage reports whether the part carries an image
func (p Part) IsImage() bool {
	return p.ImageURL != ""
}

// Message is a role-tagged list of parts
type Message struct {
	Role  Role
	Parts []Part
}

// Text concatenates the text parts of the message
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.IsImage() {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// Images returns the image data URLs of the message in order
func (m Message) Images() []string {
	var urls []string
	for _, p := range m.Parts {
		if p.IsImage() {
			urls = append(urls, p.ImageURL)
		}
	}
	return urls
}

// Request is a provider-neutral chat completion request
type Request struct {
	System          string
	Messages        []Message
	Temperature     float64
	MaxOutputTokens int
}

// Completion is the outcome of one upstream call
type Completion struct {
	Content      Content
	FinishReason string
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (Completion, error)
}

// APIError is returned when the upstream API answers with a non-2xx status
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}
