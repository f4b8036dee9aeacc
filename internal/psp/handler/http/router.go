package psp_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/psp"
)

func RegisterRoutes(r chi.Router, s *psp.Service, l *zap.Logger) {
	handler := NewPSPHandler(s, l.With(zap.String("component", "PSPHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("PSP service is healthy!"))
	})

	r.Route("/payment", func(r chi.Router) {
		r.Post("/initialize", handler.InitializeHandler)
		r.Post("/callback", handler.CallbackHandler)
		r.Get("/status/{merchantOrderId}", handler.StatusHandler)
	})
}
