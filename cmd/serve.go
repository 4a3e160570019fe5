package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/config"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/engines"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/handlers"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/metrics"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/ocr"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server with the upload page and the OCR API",
		Long: `Starts the upload page and the POST /api/ocr endpoint on the specified port.

The provider is configured through the environment (or a .env file):
OCR_PROVIDER, GEMINI_API_KEY or OPENAI_API_KEY, and OCR_SYSTEM_PROMPT.
If a required setting is missing the server still starts, and every OCR
request is answered with a 500 naming the missing setting.`,
		Example: `  # Start server on default port 8888
  classcard serve

  # Use OpenAI on a custom port
  OCR_PROVIDER=openai classcard serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			var svc *ocr.Service
			if missing := cfg.Missing(); missing != "" {
				slog.Warn("OCR is not configured, requests will fail until it is set", "missing", missing)
			} else {
				s, release, err := engines.NewService(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer release()
				svc = s
			}

			metrics.Init()
			handler := handlers.New(cfg, svc)

			mux := http.NewServeMux()
			mux.HandleFunc("/api/ocr", handler.HandleOCR)
			mux.HandleFunc("/static/", handler.HandleStatic)
			mux.HandleFunc("/healthcheck", handler.HandleHealthcheck)
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/", handler.HandleStatic)

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Upload page available", "addr", addr, "url", "http://localhost"+addr, "provider", cfg.Provider)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// In-flight OCR requests may run for several rounds
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	config.AddFlags(cmd.Flags())

	return cmd
}
