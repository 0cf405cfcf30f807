package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports a Metrics instance to Prometheus.
// Values are read from Snapshot on every scrape, so the hot path only
// touches atomics.
type MetricsCollector struct {
	metrics *Metrics

	ordersPlaced      *prometheus.Desc
	ordersRejected    *prometheus.Desc
	ordersCancelled   *prometheus.Desc
	cancelsRejected   *prometheus.Desc
	matchAttempts     *prometheus.Desc
	integrityFailures *prometheus.Desc
	dispatchFailures  *prometheus.Desc
	avgMatchLatency   *prometheus.Desc
	activeConnections *prometheus.Desc
	busyWorkers       *prometheus.Desc
}

// NewMetricsCollector creates a collector for m.
func NewMetricsCollector(m *Metrics) *MetricsCollector {
	return &MetricsCollector{
		metrics:           m,
		ordersPlaced:      prometheus.NewDesc("exchange_orders_placed_total", "Orders accepted with their reservation committed", nil, nil),
		ordersRejected:    prometheus.NewDesc("exchange_orders_rejected_total", "Placements that did not occur", nil, nil),
		ordersCancelled:   prometheus.NewDesc("exchange_orders_cancelled_total", "Orders cancelled and released", nil, nil),
		cancelsRejected:   prometheus.NewDesc("exchange_cancels_rejected_total", "Cancellations that did not occur", nil, nil),
		matchAttempts:     prometheus.NewDesc("exchange_match_attempts_total", "Match attempts by outcome", []string{"result"}, nil),
		integrityFailures: prometheus.NewDesc("exchange_integrity_failures_total", "Transactions aborted on a violated ledger invariant", nil, nil),
		dispatchFailures:  prometheus.NewDesc("exchange_dispatch_failures_total", "Match attempts that could not be enqueued", nil, nil),
		avgMatchLatency:   prometheus.NewDesc("exchange_match_latency_avg_seconds", "Average duration of a match attempt", nil, nil),
		activeConnections: prometheus.NewDesc("exchange_ws_connections", "Connected notification subscribers", nil, nil),
		busyWorkers:       prometheus.NewDesc("exchange_dispatch_busy_workers", "Dispatch workers currently matching", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ordersPlaced
	ch <- c.ordersRejected
	ch <- c.ordersCancelled
	ch <- c.cancelsRejected
	ch <- c.matchAttempts
	ch <- c.integrityFailures
	ch <- c.dispatchFailures
	ch <- c.avgMatchLatency
	ch <- c.activeConnections
	ch <- c.busyWorkers
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.ordersPlaced, snap.OrdersPlaced)
	counter(c.ordersRejected, snap.OrdersRejected)
	counter(c.ordersCancelled, snap.OrdersCancelled)
	counter(c.cancelsRejected, snap.CancelsRejected)
	counter(c.matchAttempts, snap.MatchesFilled, "filled")
	counter(c.matchAttempts, snap.MatchesNoCounter, "no_counter")
	counter(c.matchAttempts, snap.MatchesSkipped, "not_open")
	counter(c.matchAttempts, snap.MatchFailures, "failed")
	counter(c.integrityFailures, snap.IntegrityFailures)
	counter(c.dispatchFailures, snap.DispatchFailures)
	gauge(c.avgMatchLatency, float64(snap.AvgMatchLatencyNs)/1e9)
	gauge(c.activeConnections, float64(snap.ActiveConnections))
	gauge(c.busyWorkers, float64(snap.BusyWorkers))
}
