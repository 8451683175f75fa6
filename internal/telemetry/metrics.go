// Package telemetry registers the Prometheus gauges exposed by the manager
// and relay processes.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the gauges this system exposes. Each binary constructs its
// own set; both binaries register it against prometheus.DefaultRegisterer.
type Metrics struct {
	ConnectedAgents prometheus.Gauge
	OpenTunnels     prometheus.Gauge
	OpenExecs       prometheus.Gauge
	Saturated       prometheus.Gauge
	SyncQueueDepth  prometheus.Gauge
}

// New registers all gauges against reg and returns the handle used to set
// their values.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedAgents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connected_agents", Help: "Number of endpoint agents currently connected.",
		}),
		OpenTunnels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_tunnels", Help: "Number of open TCP byte-stream tunnels.",
		}),
		OpenExecs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_exec_sessions", Help: "Number of open interactive command-execution sessions.",
		}),
		Saturated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "saturated", Help: "1 if the admission controller currently reports saturation, else 0.",
		}),
		SyncQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sync_queue_depth", Help: "Current depth of the synchronization admission queue.",
		}),
	}
}
