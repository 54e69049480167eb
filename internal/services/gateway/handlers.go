package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/field-telemetry/pkg/metrics"
)

type healthStatus struct {
	Status          string  `json:"status"`
	Breaker         string  `json:"breaker"`
	InfluxEnabled   bool    `json:"influx_enabled"`
	LastWriteErrorS float64 `json:"last_write_error_age_sec,omitempty"`
	PowerPresent    bool    `json:"power_present"`
}

// healthy reports whether the upstream breaker is closed and InfluxDB, when
// enabled, has been error free for at least minAge.
func (g *Gateway) healthy(minAge time.Duration) (healthStatus, bool) {
	st := healthStatus{
		Breaker:       g.upstream.State().String(),
		InfluxEnabled: g.writer != nil,
		PowerPresent:  g.power.Present(),
	}
	influxOK := true
	if g.writer != nil {
		age := g.writer.LastErrorAge()
		st.LastWriteErrorS = age.Seconds()
		influxOK = age > minAge
	}
	upstreamOK := g.upstream.State() == gobreaker.StateClosed
	return st, upstreamOK && influxOK
}

// NewRouter serves the gateway's HTTP API. readyAge is how long InfluxDB must
// be error free before /readyz reports ready.
func NewRouter(g *Gateway, reg prometheus.Gatherer, readyAge time.Duration, origins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st, ok := g.healthy(readyAge)
		switch {
		case ok:
			st.Status = "ok"
		case st.Breaker == gobreaker.StateOpen.String():
			st.Status = "down"
		default:
			st.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, st)
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		_, ok := g.healthy(readyAge)
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, struct {
			Ready bool `json:"ready"`
		}{ok})
	}).Methods(http.MethodGet)

	r.HandleFunc("/packets/latest", func(w http.ResponseWriter, _ *http.Request) {
		rec, ok := g.Latest()
		if !ok {
			http.Error(w, "no packet received yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}).Methods(http.MethodGet)

	if reg != nil {
		r.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	}

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
