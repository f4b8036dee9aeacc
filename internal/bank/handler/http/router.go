package bank_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func RegisterRoutes(r chi.Router, s PaymentService, metricsHandler http.Handler, l *zap.Logger) {
	handler := NewPaymentHandler(s, l.With(zap.String("component", "PaymentHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Bank service is healthy!"))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/payment", func(r chi.Router) {
		r.Post("/create", handler.CreatePaymentHandler)
		r.Get("/form/{id}", handler.GetFormDataHandler)
		r.Post("/process", handler.ProcessCardHandler)
	})

	r.Route("/qr", func(r chi.Router) {
		r.Post("/create", handler.CreateQRHandler)
		r.Post("/validate", handler.ValidateQRHandler)
		r.Post("/confirm", handler.ConfirmQRHandler)
		r.Get("/{id}", handler.GetQRDataHandler)
	})
}
