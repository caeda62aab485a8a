package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the signing workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	signaturesCompleted   prometheus.Counter
	documentsFullySigned  prometheus.Counter
	certificatesIssued    prometheus.Counter
	certificatesRevoked   prometheus.Counter
	notificationsEnqueued prometheus.Counter
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	signaturesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signatures_completed_total",
		Help: "Total signatures successfully applied",
	})

	documentsFullySigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "documents_fully_signed_total",
		Help: "Total documents that reached FULLY_SIGNED",
	})

	certificatesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Total completion certificates generated",
	})

	certificatesRevoked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificates_revoked_total",
		Help: "Total certificates revoked",
	})

	notificationsEnqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_enqueued_total",
		Help: "Total workflow notifications enqueued",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal,
		signaturesCompleted, documentsFullySigned,
		certificatesIssued, certificatesRevoked,
		notificationsEnqueued, goroutines)

	return &MetricsService{
		registry:              registry,
		handler:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:       requestDuration,
		requestTotal:          requestTotal,
		signaturesCompleted:   signaturesCompleted,
		documentsFullySigned:  documentsFullySigned,
		certificatesIssued:    certificatesIssued,
		certificatesRevoked:   certificatesRevoked,
		notificationsEnqueued: notificationsEnqueued,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// SignatureCompleted counts one applied signature.
func (m *MetricsService) SignatureCompleted() {
	if m == nil {
		return
	}
	m.signaturesCompleted.Inc()
}

// DocumentFullySigned counts one completed workflow.
func (m *MetricsService) DocumentFullySigned() {
	if m == nil {
		return
	}
	m.documentsFullySigned.Inc()
}

// CertificateIssued counts one generated certificate.
func (m *MetricsService) CertificateIssued() {
	if m == nil {
		return
	}
	m.certificatesIssued.Inc()
}

// CertificateRevoked counts one revocation.
func (m *MetricsService) CertificateRevoked() {
	if m == nil {
		return
	}
	m.certificatesRevoked.Inc()
}

// NotificationEnqueued counts one outbound notification.
func (m *MetricsService) NotificationEnqueued() {
	if m == nil {
		return
	}
	m.notificationsEnqueued.Inc()
}
