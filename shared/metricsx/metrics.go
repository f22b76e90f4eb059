package metricsx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
	evaluationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capacity_evaluation_duration_seconds",
			Help:    "Capacity evaluation latency in seconds, snapshot load included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	alertResources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capacity_alert_resources",
			Help: "Resources per alert category from the latest sweep.",
		},
		[]string{"department", "category"},
	)
	weekKeyAnomalies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_week_key_anomalies_total",
			Help: "Weekly allocation keys dropped during normalization.",
		},
	)
	rejectedDeltas = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_simulation_rejected_deltas_total",
			Help: "Simulation deltas rejected as invalid.",
		},
	)
	excludedResources = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_utilization_excluded_total",
			Help: "Resources excluded from categorization because their utilization could not be computed.",
		},
	)
	alertCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capacity_alert_cache_total",
			Help: "Alert cache lookups by result.",
		},
		[]string{"result"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency, kafkaConsumerLag, influxWriteFailures, asynqQueueDepth,
		evaluationLatency, alertResources, weekKeyAnomalies, rejectedDeltas, excludedResources, alertCache,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		path := routeLabel(r.URL.Path)
		httpRequests.WithLabelValues(r.Method, path, status).Inc()
		httpLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses id segments so per-resource routes share one series.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func ObserveEvaluation(operation string, d time.Duration) {
	evaluationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func SetAlertResources(department string, category string, n int) {
	if department == "" {
		department = "all"
	}
	alertResources.WithLabelValues(department, category).Set(float64(n))
}

func AddWeekKeyAnomalies(n int) {
	if n > 0 {
		weekKeyAnomalies.Add(float64(n))
	}
}

func AddRejectedDeltas(n int) {
	if n > 0 {
		rejectedDeltas.Add(float64(n))
	}
}

func AddExcludedResources(n int) {
	if n > 0 {
		excludedResources.Add(float64(n))
	}
}

func IncAlertCache(hit bool) {
	if hit {
		alertCache.WithLabelValues("hit").Inc()
		return
	}
	alertCache.WithLabelValues("miss").Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
