package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
)

var httpMetricLabels = []string{"method", "route", "status"}

// HTTPMetricsOptions configures the HTTP metrics middleware.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

func (o HTTPMetricsOptions) withDefaults() HTTPMetricsOptions {
	if o.Namespace == "" {
		o.Namespace = "smartlock"
	}
	if o.Subsystem == "" {
		o.Subsystem = "http"
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.DefaultRegisterer
	}
	if len(o.Buckets) == 0 {
		o.Buckets = prometheus.DefBuckets
	}
	return o
}

// HTTPMetrics holds the request collectors. Routes are labelled with the gin
// route template so path parameters such as lock ids do not explode cardinality.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the collectors, reusing ones already present on the registerer.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	opts = opts.withDefaults()
	reg := opts.Registerer
	m := &HTTPMetrics{}
	var err error

	m.Requests, err = telemetry.Register(reg, "http requests", prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by method, route template and status.",
	}, httpMetricLabels))
	if err != nil {
		return nil, err
	}

	m.Duration, err = telemetry.Register(reg, "http duration", prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds by method, route template and status.",
		Buckets:   opts.Buckets,
	}, httpMetricLabels))
	if err != nil {
		return nil, err
	}

	m.InFlight, err = telemetry.Register[prometheus.Gauge](reg, "http in-flight", prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served.",
	}))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Handler records the collectors around every request. A nil receiver passes through.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		m.InFlight.Inc()
		started := time.Now()
		defer m.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		values := []string{c.Request.Method, route, strconv.Itoa(c.Writer.Status())}
		m.Requests.WithLabelValues(values...).Inc()
		m.Duration.WithLabelValues(values...).Observe(time.Since(started).Seconds())
	}
}
