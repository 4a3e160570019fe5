// Package uploader is the command-line counterpart of the browser page: it
// picks image files, encodes them as data URLs and posts them to /api/ocr.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/models"
)

// EmptyResultMessage is shown when the server returns blank text
const EmptyResultMessage = "The server returned an empty result."

// SelectImages keeps the paths whose content sniffs as an image, in order.
// Unreadable files are an error; non-image files are skipped with a warning.
func SelectImages(paths []string) ([]string, error) {
	var selected []string
	for _, p := range paths {
		mt, err := mimetype.DetectFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if !strings.HasPrefix(mt.String(), "image/") {
			slog.Warn("Skipping non-image file", "path", p, "mime", mt.String())
			continue
		}
		selected = append(selected, p)
	}
	return selected, nil
}

// EncodeFile reads path and returns it as a base64 data URL
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return dataurl.Encode(mimetype.Detect(data).String(), data), nil
}

// APIError is a non-2xx answer from the OCR endpoint
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client posts images to a running server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Submit sends one request carrying every data URL. There are no retries.
func (c *Client) Submit(ctx context.Context, dataURLs []string) (string, error) {
	body, err := json.Marshal(map[string][]string{"images": dataURLs})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ocr", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e models.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		msg := e.Detail
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out models.OCRResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if out.Result != "" {
		return out.Result, nil
	}
	return out.Text, nil
}

// Display renders what the user sees for a submission outcome
func Display(text string, err error) string {
	if err != nil {
		return "ERROR: " + err.Error()
	}
	if strings.TrimSpace(text) == "" {
		return EmptyResultMessage
	}
	return text
}

// clipboardWrite is swapped out in tests
var clipboardWrite = clipboard.WriteAll

// Copy puts text on the system clipboard. It reports false without touching
// the clipboard when there is nothing to copy.
func Copy(text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	if err := clipboardWrite(text); err != nil {
		return false, fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return true, nil
}
