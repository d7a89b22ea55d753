// Package metrics owns the Prometheus registry for the frame server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates every frame_* metric behind one custom registry so
// the exposition contains only what we emit.
type Collector struct {
	registry *prometheus.Registry

	// Device plane
	batteryVolts   *prometheus.GaugeVec
	batteryPercent *prometheus.GaugeVec
	charging       *prometheus.GaugeVec
	rssi           *prometheus.GaugeVec
	brownouts      *prometheus.GaugeVec
	statusPosts    *prometheus.CounterVec

	// Content plane
	pipelineJobs     *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	searchRequests   *prometheus.CounterVec
	sourceFailures   *prometheus.CounterVec
	imageAge         prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{registry: reg}

	c.batteryVolts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frame_device_battery_volts",
		Help: "Last reported battery voltage per device",
	}, []string{"device_id"})
	reg.MustRegister(c.batteryVolts)

	c.batteryPercent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frame_device_battery_percent",
		Help: "Last derived battery percent per device",
	}, []string{"device_id"})
	reg.MustRegister(c.batteryPercent)

	c.charging = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frame_device_charging",
		Help: "1 when the device is believed to be charging",
	}, []string{"device_id"})
	reg.MustRegister(c.charging)

	c.rssi = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frame_device_rssi_dbm",
		Help: "Last reported Wi-Fi signal strength per device",
	}, []string{"device_id"})
	reg.MustRegister(c.rssi)

	c.brownouts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frame_device_brownouts_total",
		Help: "Cumulative brownout count reported by the device",
	}, []string{"device_id"})
	reg.MustRegister(c.brownouts)

	c.statusPosts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_device_status_posts_total",
		Help: "Device status ingestions",
	}, []string{"result"})
	reg.MustRegister(c.statusPosts)

	c.pipelineJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_pipeline_jobs_total",
		Help: "Image pipeline runs by result",
	}, []string{"result"})
	reg.MustRegister(c.pipelineJobs)

	c.pipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_pipeline_duration_seconds",
		Help:    "Wall time of one pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
	})
	reg.MustRegister(c.pipelineDuration)

	c.searchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_art_search_total",
		Help: "Federated searches by outcome",
	}, []string{"outcome"}) // ok | error
	reg.MustRegister(c.searchRequests)

	c.sourceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_art_source_failures_total",
		Help: "Per-source adapter failures during fan-out",
	}, []string{"source", "kind"})
	reg.MustRegister(c.sourceFailures)

	c.imageAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "frame_current_image_age_seconds",
		Help: "Seconds since the current image was published",
	})
	reg.MustRegister(c.imageAge)

	return c
}

// Handler serves the exposition for /api/metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveDevice(deviceID string, volts, percent float64, charging bool, rssi, brownouts int) {
	c.batteryVolts.WithLabelValues(deviceID).Set(volts)
	c.batteryPercent.WithLabelValues(deviceID).Set(percent)
	v := 0.0
	if charging {
		v = 1
	}
	c.charging.WithLabelValues(deviceID).Set(v)
	c.rssi.WithLabelValues(deviceID).Set(float64(rssi))
	c.brownouts.WithLabelValues(deviceID).Set(float64(brownouts))
}

func (c *Collector) StatusPost(result string) {
	c.statusPosts.WithLabelValues(result).Inc()
}

func (c *Collector) PipelineJob(result string, elapsed time.Duration) {
	c.pipelineJobs.WithLabelValues(result).Inc()
	if result == "ok" {
		c.pipelineDuration.Observe(elapsed.Seconds())
	}
}

func (c *Collector) SearchOutcome(outcome string) {
	c.searchRequests.WithLabelValues(outcome).Inc()
}

func (c *Collector) SourceFailure(source, kind string) {
	c.sourceFailures.WithLabelValues(source, kind).Inc()
}

func (c *Collector) SetImageAge(age time.Duration) {
	c.imageAge.Set(age.Seconds())
}
