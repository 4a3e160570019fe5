package models

import "encoding/json"

// OCRRequest is the body accepted by POST /api/ocr. Images is kept raw so
// the handler can tell a missing field from one of the wrong type.
type OCRRequest struct {
	Images json.RawMessage `json:"images"`
}

// OCRResponse carries the extracted text under both field names
type OCRResponse struct {
	Result        string   `json:"result"`
	Text          string   `json:"text"`
	FinishReasons []string `json:"finishReasons,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
