package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensor_publisher"

// Metrics holds the publisher's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	ReadingsPublished prometheus.Counter
	PublishFailures   prometheus.Counter
	ConnectAttempts   *prometheus.CounterVec
	ReconnectEpisodes prometheus.Counter
	ConnectionState   prometheus.Gauge
	LastPublish       prometheus.Gauge
	LastValue         prometheus.Gauge
}

// New creates the collectors, labelled with the service, sensor and site
func New(service, sensor, site string) *Metrics {
	labels := prometheus.Labels{"service": service, "sensor": sensor, "site": site}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ReadingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "readings",
			Name:        "published_total",
			Help:        "Total number of readings published",
			ConstLabels: labels,
		}),

		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "readings",
			Name:        "failed_total",
			Help:        "Total number of publish attempts that failed",
			ConstLabels: labels,
		}),

		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "mqtt",
			Name:        "connect_attempts_total",
			Help:        "Broker connection attempts by result",
			ConstLabels: labels,
		}, []string{"result"}),

		ReconnectEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "mqtt",
			Name:        "reconnect_episodes_total",
			Help:        "Reconnection episodes started after a lost connection",
			ConstLabels: labels,
		}),

		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "mqtt",
			Name:        "connection_state",
			Help:        "Connection state (0=disconnected, 1=connecting, 2=connected)",
			ConstLabels: labels,
		}),

		LastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "readings",
			Name:        "last_publish_timestamp_seconds",
			Help:        "Unix time of the most recent published reading",
			ConstLabels: labels,
		}),

		LastValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "readings",
			Name:        "last_value",
			Help:        "Value of the most recent published reading",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.ReadingsPublished,
		m.PublishFailures,
		m.ConnectAttempts,
		m.ReconnectEpisodes,
		m.ConnectionState,
		m.LastPublish,
		m.LastValue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObservePublish records a successful publish
func (m *Metrics) ObservePublish(value float64, at time.Time) {
	m.ReadingsPublished.Inc()
	m.LastValue.Set(value)
	m.LastPublish.Set(float64(at.UnixMilli()) / 1000)
}

// ObservePublishFailure records a failed publish attempt
func (m *Metrics) ObservePublishFailure() {
	m.PublishFailures.Inc()
}

// ObserveConnectAttempt records the outcome of one connection attempt
func (m *Metrics) ObserveConnectAttempt(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

// ObserveReconnectEpisode records the start of a reconnection episode
func (m *Metrics) ObserveReconnectEpisode() {
	m.ReconnectEpisodes.Inc()
}

// SetConnectionState records the numeric connection state
func (m *Metrics) SetConnectionState(code int) {
	m.ConnectionState.Set(float64(code))
}
