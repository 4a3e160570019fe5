package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/config"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/metrics"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/models"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/ocr"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
)

const pngDataURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type fakeProvider struct {
	calls    int
	complete func(ctx context.Context, req providers.Request) (providers.Completion, error)
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Complete(ctx context.Context, req providers.Request) (providers.Completion, error) {
	f.calls++
	return f.complete(ctx, req)
}

func reply(text, finish string) func(context.Context, providers.Request) (providers.Completion, error) {
	return func(context.Context, providers.Request) (providers.Completion, error) {
		return providers.Completion{Content: providers.PlainText(text), FinishReason: finish}, nil
	}
}

func testConfig() config.Config {
	return config.Config{
		Provider:     config.ProviderOpenAI,
		OpenAIAPIKey: "sk-test",
		SystemPrompt: "extract rows",
		MaxBodyBytes: 1 << 20,
		Timeout:      time.Second,
		MaxRounds:    4,
	}
}

func newTestHandler(cfg config.Config, p *fakeProvider) *Handler {
	return New(cfg, ocr.NewService(p, ocr.Options{
		SystemPrompt: cfg.SystemPrompt,
		MaxRounds:    cfg.MaxRounds,
		Timeout:      cfg.Timeout,
	}))
}

func doOCR(h *Handler, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/ocr", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleOCR(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var e models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("Response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return e
}

func TestHandleOCRSuccess(t *testing.T) {
	p := &fakeProvider{complete: reply("apple\t사과\tAn {apple}.", "stop")}
	h := newTestHandler(testConfig(), p)

	rec := doOCR(h, http.MethodPost, `{"images":["`+pngDataURL+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}

	var resp models.OCRResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if resp.Result != resp.Text || resp.Result != "apple\t사과\tAn {apple}." {
		t.Errorf("Expected result == text, got %q / %q", resp.Result, resp.Text)
	}
	if len(resp.FinishReasons) != 1 || resp.FinishReasons[0] != "stop" {
		t.Errorf("Unexpected finish reasons %v", resp.FinishReasons)
	}
}

func TestHandleOCRRejectsBeforeUpstream(t *testing.T) {
	tooMany := testConfig()
	tooMany.MaxImages = 1

	small := testConfig()
	small.MaxBodyBytes = 64

	verify := testConfig()
	verify.VerifyImages = true

	noKey := testConfig()
	noKey.OpenAIAPIKey = ""

	noPrompt := testConfig()
	noPrompt.SystemPrompt = "  "

	tests := []struct {
		name     string
		cfg      config.Config
		method   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"wrong method", testConfig(), http.MethodGet, "", http.StatusMethodNotAllowed, "Method not allowed"},
		{"missing api key", noKey, http.MethodPost, `{"images":["` + pngDataURL + `"]}`, http.StatusInternalServerError, "Missing OPENAI_API_KEY"},
		{"missing prompt", noPrompt, http.MethodPost, `{"images":["` + pngDataURL + `"]}`, http.StatusInternalServerError, "Missing OCR_SYSTEM_PROMPT"},
		{"body too large", small, http.MethodPost, `{"images":["` + pngDataURL + `"]}`, http.StatusRequestEntityTooLarge, "Request body too large"},
		{"invalid json", testConfig(), http.MethodPost, `{"images":`, http.StatusBadRequest, "Invalid JSON"},
		{"images missing", testConfig(), http.MethodPost, `{}`, http.StatusBadRequest, "No images provided"},
		{"images null", testConfig(), http.MethodPost, `{"images":null}`, http.StatusBadRequest, "No images provided"},
		{"images not a list", testConfig(), http.MethodPost, `{"images":"` + pngDataURL + `"}`, http.StatusBadRequest, "No images provided"},
		{"images empty", testConfig(), http.MethodPost, `{"images":[]}`, http.StatusBadRequest, "No images provided"},
		{"too many images", tooMany, http.MethodPost, `{"images":["` + pngDataURL + `","` + pngDataURL + `"]}`, http.StatusBadRequest, "Too many images"},
		{"not an image data url", testConfig(), http.MethodPost, `{"images":["data:text/plain;base64,aGk="]}`, http.StatusBadRequest, "Invalid image data URL"},
		{"plain url", testConfig(), http.MethodPost, `{"images":["https://example.com/a.png"]}`, http.StatusBadRequest, "Invalid image data URL"},
		{"non string element", testConfig(), http.MethodPost, `{"images":[42]}`, http.StatusBadRequest, "Invalid image data URL"},
		{"payload is not an image", verify, http.MethodPost, `{"images":["data:image/png;base64,aGVsbG8gd29ybGQ="]}`, http.StatusBadRequest, "Invalid image data URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{complete: reply("unused", "stop")}
			var h *Handler
			if tt.cfg.Missing() != "" {
				h = New(tt.cfg, nil)
			} else {
				h = newTestHandler(tt.cfg, p)
			}

			rec := doOCR(h, tt.method, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if e := decodeError(t, rec); e.Error != tt.wantErr {
				t.Errorf("Expected error %q, got %q", tt.wantErr, e.Error)
			}
			if p.calls != 0 {
				t.Errorf("Expected no upstream calls, got %d", p.calls)
			}
		})
	}
}

func TestHandleOCRVerifiedImage(t *testing.T) {
	cfg := testConfig()
	cfg.VerifyImages = true
	p := &fakeProvider{complete: reply("ok", "stop")}

	rec := doOCR(newTestHandler(cfg, p), http.MethodPost, `{"images":["`+pngDataURL+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleOCRFailures(t *testing.T) {
	tests := []struct {
		name       string
		complete   func(context.Context, providers.Request) (providers.Completion, error)
		wantCode   int
		wantErr    string
		wantDetail string
	}{
		{
			name:     "empty output",
			complete: reply("   \n", "stop"),
			wantCode: http.StatusBadGateway,
			wantErr:  "Empty model output",
		},
		{
			name: "provider error",
			complete: func(context.Context, providers.Request) (providers.Completion, error) {
				return providers.Completion{}, &providers.APIError{Provider: "fake", StatusCode: 429, Body: "rate limited"}
			},
			wantCode:   http.StatusBadGateway,
			wantErr:    "Upstream provider error",
			wantDetail: "rate limited",
		},
		{
			name: "timeout",
			complete: func(ctx context.Context, _ providers.Request) (providers.Completion, error) {
				<-ctx.Done()
				return providers.Completion{}, ctx.Err()
			},
			wantCode: http.StatusInternalServerError,
			wantErr:  "OCR request timed out",
		},
		{
			name: "network failure",
			complete: func(context.Context, providers.Request) (providers.Completion, error) {
				return providers.Completion{}, errors.New("connection refused")
			},
			wantCode:   http.StatusInternalServerError,
			wantErr:    "OCR failed",
			wantDetail: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Timeout = 20 * time.Millisecond
			h := newTestHandler(cfg, &fakeProvider{complete: tt.complete})

			rec := doOCR(h, http.MethodPost, `{"images":["`+pngDataURL+`"]}`)
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			e := decodeError(t, rec)
			if e.Error != tt.wantErr {
				t.Errorf("Expected error %q, got %q", tt.wantErr, e.Error)
			}
			if e.Detail == "" {
				t.Error("Expected a detail message")
			}
			if tt.wantDetail != "" && !strings.Contains(e.Detail, tt.wantDetail) {
				t.Errorf("Expected detail to contain %q, got %q", tt.wantDetail, e.Detail)
			}
		})
	}
}

func TestHandleOCRContinuation(t *testing.T) {
	reasons := []string{"length", "length", "stop"}
	p := &fakeProvider{}
	p.complete = func(context.Context, providers.Request) (providers.Completion, error) {
		i := p.calls - 1
		return providers.Completion{Content: providers.PlainText("row" + string(rune('1'+i))), FinishReason: reasons[i]}, nil
	}

	rec := doOCR(newTestHandler(testConfig(), p), http.MethodPost, `{"images":["`+pngDataURL+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.OCRResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if resp.Text != "row1\nrow2\nrow3" {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if p.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", p.calls)
	}
}

// requestCount reads classcard_ocr_requests_total for one status code
func requestCount(t *testing.T, code string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "classcard_ocr_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "code" && l.GetValue() == code {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRequestMetricsCountOnlyOCR(t *testing.T) {
	metrics.Init()
	h := newTestHandler(testConfig(), &fakeProvider{complete: reply("ok", "stop")})

	before405 := requestCount(t, "405")
	before400 := requestCount(t, "400")
	before200 := requestCount(t, "200")

	rec := httptest.NewRecorder()
	h.HandleStatic(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405 from static handler, got %d", rec.Code)
	}
	if got := requestCount(t, "405"); got != before405 {
		t.Errorf("Static 405 counted as an OCR request: %v -> %v", before405, got)
	}

	doOCR(h, http.MethodPost, `{"images":[]}`)
	if got := requestCount(t, "400"); got != before400+1 {
		t.Errorf("Expected one more 400, got %v -> %v", before400, got)
	}

	doOCR(h, http.MethodPost, `{"images":["`+pngDataURL+`"]}`)
	if got := requestCount(t, "200"); got != before200+1 {
		t.Errorf("Expected one more 200, got %v -> %v", before200, got)
	}
}
