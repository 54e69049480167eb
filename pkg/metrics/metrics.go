// Package metrics defines the Prometheus collectors exported by the node and the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Node struct {
	Decisions    *prometheus.CounterVec
	SendFailures prometheus.Counter
	LastValue    prometheus.Gauge
	BatteryLevel prometheus.Gauge
}

func NewNode(reg prometheus.Registerer) *Node {
	f := promauto.With(reg)
	return &Node{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "field_node_decisions_total",
			Help: "Gate decisions by outcome.",
		}, []string{"outcome"}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "field_node_send_failures_total",
			Help: "Payloads the transport failed to deliver.",
		}),
		LastValue: f.NewGauge(prometheus.GaugeOpts{
			Name: "field_node_last_value",
			Help: "Driver value at the last commit.",
		}),
		BatteryLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "field_node_battery_level",
			Help: "Battery level of the node, 0-100.",
		}),
	}
}

type Gateway struct {
	Packets      *prometheus.CounterVec
	LastRSSI     prometheus.Gauge
	ForwardTimes prometheus.Histogram
}

func NewGateway(reg prometheus.Registerer) *Gateway {
	f := promauto.With(reg)
	return &Gateway{
		Packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_packets_total",
			Help: "Radio packets by handling result.",
		}, []string{"result"}),
		LastRSSI: f.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_last_rssi_dbm",
			Help: "RSSI of the last received packet.",
		}),
		ForwardTimes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_forward_seconds",
			Help:    "Time spent forwarding one packet upstream.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
