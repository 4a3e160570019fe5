package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for the native Google Gemini API
type Gemini struct {
	client *genai.Client
	model  string
}

// New returns a new Gemini provider. The underlying client is created once
// and shared by every request; call Close on shutdown.
func New(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

// Close releases the underlying client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Complete replays the conversation history and sends the last user turn
func (g *Gemini) Complete(ctx context.Context, req providers.Request) (providers.Completion, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	history, last, err := toContents(req.Messages)
	if err != nil {
		return providers.Completion{}, err
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		var coded interface{ HTTPCode() int }
		if errors.As(err, &coded) && coded.HTTPCode() > 0 {
			return providers.Completion{}, &providers.APIError{Provider: "gemini", StatusCode: coded.HTTPCode(), Body: err.Error()}
		}
		return providers.Completion{}, fmt.Errorf("failed to generate content: %w", err)
	}

	completion, err := fromResponse(resp)
	if err != nil {
		return providers.Completion{}, err
	}
	slog.Debug("Gemini content received", "model", g.model, "finish_reason", completion.FinishReason)
	return completion, nil
}

// toContents converts the messages into chat history plus the final user
// turn that is sent with SendMessage.
func toContents(messages []providers.Message) ([]*genai.Content, *genai.Content, error) {
	if len(messages) == 0 {
		return nil, nil, fmt.Errorf("no messages to send")
	}

	contents := make([]*genai.Content, 0, len(messages))
	for i, m := range messages {
		role := "user"
		if m.Role == providers.RoleAssistant {
			role = "model"
		}

		content := &genai.Content{Role: role}
		for _, p := range m.Parts {
			if !p.IsImage() {
				content.Parts = append(content.Parts, genai.Text(p.Text))
				continue
			}
			img, err := dataurl.Parse(p.ImageURL)
			if err != nil {
				return nil, nil, fmt.Errorf("message %d: %w", i, err)
			}
			data, err := img.Decode()
			if err != nil {
				return nil, nil, fmt.Errorf("message %d: %w", i, err)
			}
			content.Parts = append(content.Parts, genai.Blob{MIMEType: img.MIMEType, Data: data})
		}
		contents = append(contents, content)
	}

	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, nil, fmt.Errorf("last message must be a user turn")
	}
	return contents[:len(contents)-1], last, nil
}

func fromResponse(resp *genai.GenerateContentResponse) (providers.Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return providers.Completion{}, fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	parts := providers.PartList{}
	if candidate.Content != nil {
		for _, p := range candidate.Content.Parts {
			if txt, ok := p.(genai.Text); ok {
				parts = append(parts, providers.ContentPart{Type: "text", Text: string(txt)})
			}
		}
	}

	return providers.Completion{
		Content:      parts,
		FinishReason: finishReason(candidate.FinishReason),
	}, nil
}

func finishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	case genai.FinishReasonSafety:
		return "safety"
	case genai.FinishReasonRecitation:
		return "recitation"
	case genai.FinishReasonOther:
		return "other"
	default:
		return ""
	}
}
