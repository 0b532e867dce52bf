package monitor

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector owns every Prometheus series of the service. All record
// methods are safe to call on a nil collector.
type MetricsCollector struct {
	registry *prometheus.Registry

	eventPublishTotal   *prometheus.CounterVec
	eventHandleTotal    *prometheus.CounterVec
	eventHandleDuration *prometheus.HistogramVec
	eventDeadLetter     *prometheus.CounterVec

	settlementTotal    *prometheus.CounterVec
	settlementAmount   *prometheus.CounterVec
	settlementDuration *prometheus.HistogramVec

	jobRunTotal     *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	stockDrift      *prometheus.GaugeVec

	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
}

// NewMetricsCollector registers the collectors on a fresh registry
func NewMetricsCollector(namespace string) *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	mc := &MetricsCollector{registry: reg}
	mc.initMetrics(promauto.With(reg), namespace)
	return mc
}

func (mc *MetricsCollector) initMetrics(f promauto.Factory, ns string) {
	mc.eventPublishTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "event_publish_total",
		Help:      "Events handed to the backing queue",
	}, []string{"channel", "event", "status"})

	mc.eventHandleTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "event_handle_total",
		Help:      "Listener invocations by outcome",
	}, []string{"channel", "topic", "status"})

	mc.eventHandleDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "event_handle_duration_seconds",
		Help:      "Listener execution time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel", "topic"})

	mc.eventDeadLetter = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "event_dead_letter_total",
		Help:      "Events that exhausted their delivery attempts",
	}, []string{"stream", "group"})

	mc.settlementTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "settlement_total",
		Help:      "Settlement attempts by kind and outcome",
	}, []string{"kind", "status"})

	mc.settlementAmount = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "settlement_amount_total",
		Help:      "Tokens moved by successful settlements, in cents",
	}, []string{"kind", "party"})

	mc.settlementDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "settlement_duration_seconds",
		Help:      "Time spent settling a purchase",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"kind"})

	mc.jobRunTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "job_run_total",
		Help:      "Scheduled job runs by outcome",
	}, []string{"job", "status"})

	mc.transitionTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "scheduled_transition_total",
		Help:      "Scheduled entities activated",
	}, []string{"entity"})

	mc.stockDrift = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "stock_drift",
		Help:      "Product stock minus the after_stock of its last stock log",
	}, []string{"product_id"})

	mc.httpRequestTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "http_request_total",
		Help:      "HTTP requests",
	}, []string{"method", "path", "status"})

	mc.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	mc.memoryUsage = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "memory_alloc_bytes",
		Help:      "Bytes of allocated heap objects",
	})

	mc.goroutineCount = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "goroutines",
		Help:      "Number of goroutines",
	})
}

// RecordPublish counts one publish attempt
func (mc *MetricsCollector) RecordPublish(channel, event, status string) {
	if mc == nil {
		return
	}
	mc.eventPublishTotal.WithLabelValues(channel, event, status).Inc()
}

// RecordHandle counts one listener invocation and its duration
func (mc *MetricsCollector) RecordHandle(channel, topic, status string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.eventHandleTotal.WithLabelValues(channel, topic, status).Inc()
	mc.eventHandleDuration.WithLabelValues(channel, topic).Observe(duration.Seconds())
}

// RecordDeadLetter counts a message given up on by the queue
func (mc *MetricsCollector) RecordDeadLetter(stream, group string) {
	if mc == nil {
		return
	}
	mc.eventDeadLetter.WithLabelValues(stream, group).Inc()
}

// RecordSettlement counts a settlement outcome
func (mc *MetricsCollector) RecordSettlement(kind, status string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.settlementTotal.WithLabelValues(kind, status).Inc()
	mc.settlementDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSettledAmounts adds the buyer, seller and platform legs of a success
func (mc *MetricsCollector) RecordSettledAmounts(kind string, total, seller, commission int64) {
	if mc == nil {
		return
	}
	mc.settlementAmount.WithLabelValues(kind, "buyer").Add(float64(total))
	mc.settlementAmount.WithLabelValues(kind, "seller").Add(float64(seller))
	mc.settlementAmount.WithLabelValues(kind, "platform").Add(float64(commission))
}

// RecordJobRun counts a scheduled job execution
func (mc *MetricsCollector) RecordJobRun(job, status string) {
	if mc == nil {
		return
	}
	mc.jobRunTotal.WithLabelValues(job, status).Inc()
}

// RecordTransition counts an activated scheduled entity
func (mc *MetricsCollector) RecordTransition(entity string) {
	if mc == nil {
		return
	}
	mc.transitionTotal.WithLabelValues(entity).Inc()
}

// SetStockDrift records the reconciliation difference of a product
func (mc *MetricsCollector) SetStockDrift(productID uint64, difference int) {
	if mc == nil {
		return
	}
	mc.stockDrift.WithLabelValues(strconv.FormatUint(productID, 10)).Set(float64(difference))
}

// RecordHTTPRequest counts a served HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics refreshes the runtime gauges
func (mc *MetricsCollector) UpdateSystemMetrics() {
	if mc == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// StartSystemMetricsCollection refreshes runtime gauges until ctx is done
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}

// GetRegistry returns the registry to expose over HTTP
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
