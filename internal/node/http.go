package node

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/field-telemetry/pkg/metrics"
)

// NewHandler serves /healthz with the node status and /metrics.
func NewHandler(n *Node, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(n.Status())
	})
	if g != nil {
		mux.Handle("/metrics", metrics.Handler(g))
	}
	return mux
}
