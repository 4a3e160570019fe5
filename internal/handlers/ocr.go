package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/metrics"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/models"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/ocr"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
)

// HandleOCR accepts {images: [dataURL, ...]} and returns the extracted text.
// All input checks run before any upstream call.
func (h *Handler) HandleOCR(rw http.ResponseWriter, r *http.Request) {
	w := &statusWriter{ResponseWriter: rw, status: http.StatusOK}
	defer func() { metrics.ObserveRequest(w.status) }()

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	logger := slog.With("request_id", requestID)

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	if missing := h.cfg.Missing(); missing != "" || h.ocrService == nil {
		if missing == "" {
			missing = "OCR service"
		}
		logger.Error("OCR request rejected, server is misconfigured", "missing", missing)
		h.writeError(w, http.StatusInternalServerError, "Missing "+missing, "")
		return
	}

	images, code, msg, detail := h.readImages(w, r)
	if code != 0 {
		logger.Warn("Rejected OCR request", "status", code, "error", msg, "detail", detail)
		h.writeError(w, code, msg, detail)
		return
	}

	logger.Info("Processing OCR request", "images", len(images), "provider", h.ocrService.Provider().Name())
	start := time.Now()

	result, err := h.ocrService.Extract(r.Context(), images)
	if err != nil {
		code, msg := classify(err)
		logger.Error("OCR failed", "status", code, "err", err, "duration", time.Since(start))
		h.writeError(w, code, msg, err.Error())
		return
	}

	logger.Info("OCR completed",
		"rounds", len(result.Rounds),
		"finish_reasons", result.FinishReasons,
		"length", len(result.Text),
		"duration", time.Since(start))

	h.writeJSON(w, http.StatusOK, models.OCRResponse{
		Result:        result.Text,
		Text:          result.Text,
		FinishReasons: result.FinishReasons,
	})
}

// readImages decodes and validates the request body. A non-zero code means
// the request must be rejected with that status.
func (h *Handler) readImages(w http.ResponseWriter, r *http.Request) ([]dataurl.Image, int, string, string) {
	body := r.Body
	if h.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, "Request body too large", fmt.Sprintf("limit is %d bytes", tooLarge.Limit)
		}
		return nil, http.StatusBadRequest, "Failed to read request body", err.Error()
	}

	var req models.OCRRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, http.StatusBadRequest, "Invalid JSON", err.Error()
	}

	var items []json.RawMessage
	trimmed := bytes.TrimSpace(req.Images)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, http.StatusBadRequest, "No images provided", ""
	}
	if err := json.Unmarshal(trimmed, &items); err != nil || len(items) == 0 {
		return nil, http.StatusBadRequest, "No images provided", ""
	}

	if h.cfg.MaxImages > 0 && len(items) > h.cfg.MaxImages {
		return nil, http.StatusBadRequest, "Too many images",
			fmt.Sprintf("got %d, at most %d allowed", len(items), h.cfg.MaxImages)
	}

	images := make([]dataurl.Image, 0, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, http.StatusBadRequest, "Invalid image data URL", fmt.Sprintf("image %d is not a string", i+1)
		}
		img, err := dataurl.Parse(s)
		if err != nil {
			return nil, http.StatusBadRequest, "Invalid image data URL", fmt.Sprintf("image %d: %v", i+1, err)
		}
		if h.cfg.VerifyImages {
			info, err := dataurl.Verify(img)
			if err != nil {
				return nil, http.StatusBadRequest, "Invalid image data URL", fmt.Sprintf("image %d: %v", i+1, err)
			}
			slog.Debug("Image verified", "index", i+1, "mime", info.MIMEType, "size", info.Size, "width", info.Width, "height", info.Height)
		}
		images = append(images, img)
	}

	return images, 0, "", ""
}

func classify(err error) (int, string) {
	var apiErr *providers.APIError
	switch {
	case errors.Is(err, ocr.ErrEmptyOutput):
		return http.StatusBadGateway, "Empty model output"
	case errors.Is(err, ocr.ErrTimeout):
		return http.StatusInternalServerError, "OCR request timed out"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "Upstream provider error"
	default:
		return http.StatusInternalServerError, "OCR failed"
	}
}
