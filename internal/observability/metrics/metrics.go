package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricPrefix = "ledger_"

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	billGenerateTotal   *prometheus.CounterVec
	billGenerateLatency *prometheus.HistogramVec
	billOutcomes        *prometheus.CounterVec

	paymentTransitions *prometheus.CounterVec
	paymentCreated     *prometheus.CounterVec

	analyticsTotal   *prometheus.CounterVec
	analyticsLatency *prometheus.HistogramVec

	documentRenderTotal *prometheus.CounterVec

	notifyTotal *prometheus.CounterVec
)

// Init registers ledger metrics and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route and status class",
			},
			[]string{"route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_latency_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)

		billGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_generate_total",
				Help: "Total bill generation runs by result",
			},
			[]string{"result"},
		)
		billGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_generate_latency_seconds",
				Help:    "Bill generation run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		billOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_accounts_total",
				Help: "Accounts processed by bill generation by outcome",
			},
			[]string{"outcome"},
		)

		paymentCreated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_created_total",
				Help: "Total created payments by kind and result",
			},
			[]string{"kind", "result"},
		)
		paymentTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_transitions_total",
				Help: "Total payment status transitions by target status and result",
			},
			[]string{"status", "result"},
		)

		analyticsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analytics_total",
				Help: "Total analytics computations by result",
			},
			[]string{"result"},
		)
		analyticsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analytics_latency_seconds",
				Help:    "Analytics computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		documentRenderTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "document_render_total",
				Help: "Total rendered documents by format and result",
			},
			[]string{"format", "result"},
		)

		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notifications by channel and result",
			},
			[]string{"channel", "result"},
		)

		prometheus.MustRegister(
			httpRequests,
			httpLatency,
			billGenerateTotal,
			billGenerateLatency,
			billOutcomes,
			paymentCreated,
			paymentTransitions,
			analyticsTotal,
			analyticsLatency,
			documentRenderTotal,
			notifyTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveHTTP records a served request.
func ObserveHTTP(route string, status int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, statusClass(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(route).Observe(duration.Seconds())
	}
}

// ObserveBillGenerate records a generation run.
func ObserveBillGenerate(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if billGenerateTotal != nil {
		billGenerateTotal.WithLabelValues(result).Inc()
	}
	if billGenerateLatency != nil {
		billGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddBillOutcomes adds per-account generation outcomes.
func AddBillOutcomes(created, skipped, failed int) {
	if billOutcomes == nil {
		return
	}
	billOutcomes.WithLabelValues("created").Add(float64(created))
	billOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	billOutcomes.WithLabelValues("error").Add(float64(failed))
}

// IncPaymentCreated counts a payment creation attempt.
func IncPaymentCreated(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if paymentCreated != nil {
		paymentCreated.WithLabelValues(kind, result).Inc()
	}
}

// IncPaymentTransition counts a payment transition attempt.
func IncPaymentTransition(status, result string) {
	if status == "" {
		status = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if paymentTransitions != nil {
		paymentTransitions.WithLabelValues(status, result).Inc()
	}
}

// ObserveAnalytics records an analytics computation.
func ObserveAnalytics(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if analyticsTotal != nil {
		analyticsTotal.WithLabelValues(result).Inc()
	}
	if analyticsLatency != nil {
		analyticsLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDocumentRender counts a rendered document.
func IncDocumentRender(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if documentRenderTotal != nil {
		documentRenderTotal.WithLabelValues(format, result).Inc()
	}
}

// IncNotification counts a notification delivery attempt.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(channel, result).Inc()
	}
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
