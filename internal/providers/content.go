package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the message content returned by a provider. It is one of
// PlainText, PartList or Opaque.
type Content interface {
	isContent()
}

// PlainText is content delivered as a single string
type PlainText string

// PartList is content delivered as an ordered list of typed parts
type PartList []ContentPart

// ContentPart is one typed element of a PartList
type ContentPart struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Opaque holds a content shape no provider is documented to return
type Opaque struct {
	Value any
}

func (PlainText) isContent() {}
func (PartList) isContent()  {}
func (Opaque) isContent()    {}

// Normalize collapses content into the text shown to the user.
// Part texts are joined with a newline, in order.
func Normalize(c Content) string {
	switch v := c.(type) {
	case nil:
		return ""
	case PlainText:
		return string(v)
	case PartList:
		texts := make([]string, 0, len(v))
		for _, p := range v {
			texts = append(texts, p.Text)
		}
		return strings.Join(texts, "\n")
	case Opaque:
		if v.Value == nil {
			return ""
		}
		if s, ok := v.Value.(string); ok {
			return s
		}
		if b, err := json.Marshal(v.Value); err == nil {
			return string(b)
		}
		return fmt.Sprint(v.Value)
	default:
		return fmt.Sprint(v)
	}
}

// DecodeContent interprets a raw JSON "content" field. Strings become
// PlainText, arrays become PartList (bare strings inside the array are kept
// as text parts), null becomes empty PlainText and anything else is Opaque.
func DecodeContent(raw json.RawMessage) Content {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return PlainText("")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return PlainText(s)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make(PartList, 0, len(items))
		for _, item := range items {
			var str string
			if err := json.Unmarshal(item, &str); err == nil {
				parts = append(parts, ContentPart{Type: "text", Text: str})
				continue
			}
			var p ContentPart
			if err := json.Unmarshal(item, &p); err == nil {
				parts = append(parts, p)
			}
		}
		return parts
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Opaque{Value: trimmed}
	}
	return Opaque{Value: v}
}
