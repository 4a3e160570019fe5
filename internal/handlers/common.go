package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/config"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/models"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/ocr"
)

type Handler struct {
	cfg config.Config
	// nil when the configuration is incomplete; requests then fail with the missing item
	ocrService *ocr.Service
}

func New(cfg config.Config, svc *ocr.Service) *Handler {
	return &Handler{
		cfg:        cfg,
		ocrService: svc,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

// statusWriter remembers the status code written through it
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message, detail string) {
	h.writeJSON(w, code, models.ErrorResponse{Error: message, Detail: detail})
}

// HandleHealthcheck reports liveness
func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}
