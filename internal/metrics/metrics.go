// Package metrics registers the bank's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PaymentsProcessed *prometheus.CounterVec
	QRValidations     *prometheus.CounterVec
	PSPCallbacks      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PaymentsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_payments_processed_total",
			Help: "Payments processed, labelled by method and final status.",
		}, []string{"method", "status"}),
		QRValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_qr_validations_total",
			Help: "QR payload validations, labelled by outcome.",
		}, []string{"outcome"}),
		PSPCallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_psp_callbacks_total",
			Help: "Outcome callbacks delivered to the PSP, labelled by result.",
		}, []string{"result"}),
	}
}
