// Package metrics exposes printer activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metric names.
const (
	MetricPrintJobsTotal         = "thermal_receipt_print_jobs_total"
	MetricErrorsTotal            = "thermal_receipt_errors_total"
	MetricPrinterConnected       = "thermal_receipt_printer_connected"
	MetricScansTotal             = "thermal_receipt_scans_total"
	MetricDevicesFoundTotal      = "thermal_receipt_devices_found_total"
	MetricReceiptBytesTotal      = "thermal_receipt_receipt_bytes_total"
	MetricCompileDurationSeconds = "thermal_receipt_compile_duration_seconds"
)

// Collector is a status.Reporter that turns events into metrics.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	registry *prometheus.Registry

	printJobsTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	connected       prometheus.Gauge
	scansTotal      prometheus.Counter
	devicesFound    prometheus.Counter
	receiptBytes    prometheus.Counter
	compileDuration prometheus.Histogram
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		printJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrintJobsTotal,
			Help: "Print jobs by outcome (sent, parked, resent).",
		}, []string{"result"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricErrorsTotal,
			Help: "Reported errors by kind.",
		}, []string{"kind"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrinterConnected,
			Help: "1 while a printer is connected.",
		}),
		scansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricScansTotal,
			Help: "Discovery sessions started.",
		}),
		devicesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDevicesFoundTotal,
			Help: "Distinct devices reported by discovery sessions.",
		}),
		receiptBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReceiptBytesTotal,
			Help: "Bytes produced by receipt compilation.",
		}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricCompileDurationSeconds,
			Help:    "Time spent compiling receipts.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	c.registry.MustRegister(
		c.printJobsTotal,
		c.errorsTotal,
		c.connected,
		c.scansTotal,
		c.devicesFound,
		c.receiptBytes,
		c.compileDuration,
	)
	return c
}

// Report implements status.Reporter.
func (c *Collector) Report(e status.Event) {
	switch e.Type {
	case status.EventStateChanged:
		if e.State == "connected" {
			c.connected.Set(1)
		} else {
			c.connected.Set(0)
		}
	case status.EventJobSent:
		c.printJobsTotal.WithLabelValues("sent").Inc()
	case status.EventJobParked:
		c.printJobsTotal.WithLabelValues("parked").Inc()
	case status.EventJobResent:
		c.printJobsTotal.WithLabelValues("resent").Inc()
	case status.EventScanStarted:
		c.scansTotal.Inc()
	case status.EventDeviceFound:
		c.devicesFound.Inc()
	case status.EventError:
		kind := string(e.Kind)
		if kind == "" {
			kind = "unknown"
		}
		c.errorsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveCompile records one receipt compilation.
func (c *Collector) ObserveCompile(d time.Duration, size int) {
	c.compileDuration.Observe(d.Seconds())
	c.receiptBytes.Add(float64(size))
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
