package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servifind",
			Name:      "bookings_created_total",
			Help:      "Count of reservation attempts by outcome.",
		},
		[]string{"status"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servifind",
			Name:      "payments_total",
			Help:      "Count of payment attempts by terminal outcome.",
		},
		[]string{"result"},
	)

	tokenRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servifind",
			Name:      "token_refresh_total",
			Help:      "Count of silent token refreshes by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingsCreated, payments, tokenRefresh)
	})
}

func IncBookingCreated(status string) {
	bookingsCreated.WithLabelValues(status).Inc()
}

func IncPayment(result string) {
	payments.WithLabelValues(result).Inc()
}

func IncTokenRefresh(result string) {
	tokenRefresh.WithLabelValues(result).Inc()
}
