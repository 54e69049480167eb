package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/metrics"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/rylr896"
)

const frame = `{"type":"sensor","lahanID":3,"sensor":{"Humidity":60.5,"Temperature":27,"Ec":1,"Ph":6.5,"Nitrogen":2,"Phosporus":3,"Kalium":4},"battery":{"voltage":3700,"dischargeCurrent":0,"percentage":44.44,"chargeCurrent":0}}`

type captureHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, r.Message)
	h.mu.Unlock()
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.msgs...)
}

type urlSink struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (s *urlSink) Send(_ context.Context, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, string(p))
	return s.err
}

func (s *urlSink) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

type fixedPower struct{}

func (fixedPower) Read() model.BatteryTelemetry {
	return model.BatteryTelemetry{Voltage: 4.2, ChargeCurrent: 12.5}
}
func (fixedPower) Present() bool { return true }

// scriptedRadio replays its results, then blocks until ctx ends.
type scriptedRadio struct {
	mu      sync.Mutex
	results []radioResult
}

type radioResult struct {
	pkt rylr896.Packet
	err error
}

func (r *scriptedRadio) Receive(ctx context.Context) (rylr896.Packet, error) {
	r.mu.Lock()
	if len(r.results) > 0 {
		res := r.results[0]
		r.results = r.results[1:]
		r.mu.Unlock()
		return res.pkt, res.err
	}
	r.mu.Unlock()
	<-ctx.Done()
	return rylr896.Packet{}, ctx.Err()
}

type fakeWriteAPI struct {
	api.WriteAPI

	mu     sync.Mutex
	points []*write.Point
	errs   chan error
}

func newFakeWriteAPI() *fakeWriteAPI { return &fakeWriteAPI{errs: make(chan error, 1)} }

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}
func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }
func (f *fakeWriteAPI) Flush()               {}

func (f *fakeWriteAPI) written() []*write.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*write.Point(nil), f.points...)
}

type fixture struct {
	gw    *Gateway
	sink  *urlSink
	logs  *captureHandler
	reg   *prometheus.Registry
	write *fakeWriteAPI
}

func newFixture(t *testing.T, radio Receiver, fails int) *fixture {
	t.Helper()
	f := &fixture{
		sink:  &urlSink{},
		logs:  &captureHandler{},
		reg:   prometheus.NewRegistry(),
		write: newFakeWriteAPI(),
	}
	log := slog.New(f.logs)
	f.gw = New(Options{
		Radio:       radio,
		Upstream:    NewUpstream(f.sink, NewBreaker("test", fails, time.Minute, 0)),
		Endpoint:    "https://sheet.test/exec",
		Writer:      NewWriter(f.write, log),
		Measurement: "field reading",
		Power:       fixedPower{},
		Metrics:     metrics.NewGateway(f.reg),
		Logger:      log,
		Now:         func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func TestHandle_ForwardsWithGatewayBattery(t *testing.T) {
	f := newFixture(t, nil, 5)

	err := f.gw.Handle(context.Background(), rylr896.Packet{Address: 1, Data: []byte(frame), RSSI: -48, SNR: 11})
	require.NoError(t, err)

	require.Len(t, f.sink.sent(), 1)
	assert.Equal(t, "https://sheet.test/exec?lahanID=3&humidity=60.50&temperature=27.00&ec=1.00&ph=6.50"+
		"&nitrogen=2.00&phosphorus=3.00&potassium=4.00&batteryVoltage=4200.00&batteryPercentage=100.00"+
		"&batteryChargeCurrent=12.50&batteryDischargeCurrent=0.00", f.sink.sent()[0])

	rec, ok := f.gw.Latest()
	require.True(t, ok)
	assert.True(t, rec.Forwarded)
	assert.Equal(t, 3, rec.Packet.LahanID)
	assert.Equal(t, -48, rec.RSSI)
	assert.Equal(t, 4200.0, rec.Battery.Voltage)

	points := f.write.written()
	require.Len(t, points, 1)
	assert.Equal(t, "field_reading", points[0].Name())
	assert.Equal(t, int64(1), f.gw.writer.Count(3))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.gw.metrics.Packets.WithLabelValues("forwarded")))
	assert.Equal(t, -48.0, testutil.ToFloat64(f.gw.metrics.LastRSSI))
}

func TestHandle_DropsInvalidFrame(t *testing.T) {
	f := newFixture(t, nil, 5)

	err := f.gw.Handle(context.Background(), rylr896.Packet{Address: 1, Data: []byte(`{"lahanID":`)})
	assert.Error(t, err)
	assert.Empty(t, f.sink.sent())
	assert.Empty(t, f.write.written())
	assert.Contains(t, f.logs.messages(), "gateway: failed to parse packet")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.gw.metrics.Packets.WithLabelValues("invalid")))

	_, ok := f.gw.Latest()
	assert.False(t, ok)
}

func TestHandle_BreakerOpensAfterFailures(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.sink.err = errors.New("upstream down")
	pkt := rylr896.Packet{Address: 1, Data: []byte(frame)}

	assert.Error(t, f.gw.Handle(context.Background(), pkt))
	assert.Error(t, f.gw.Handle(context.Background(), pkt))
	assert.Equal(t, gobreaker.StateOpen, f.gw.upstream.State())

	err := f.gw.Handle(context.Background(), pkt)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, f.sink.sent(), 2, "open breaker must not reach the sink")

	rec, _ := f.gw.Latest()
	assert.False(t, rec.Forwarded)
	assert.NotEmpty(t, rec.Error)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.gw.metrics.Packets.WithLabelValues("forward_failed")))
}

func TestRun_SkipsMalformedFrames(t *testing.T) {
	radio := &scriptedRadio{results: []radioResult{
		{err: rylr896.ErrMalformedRCV},
		{pkt: rylr896.Packet{Address: 1, Data: []byte(frame)}},
	}}
	f := newFixture(t, radio, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.gw.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.sink.sent()) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.gw.metrics.Packets.WithLabelValues("malformed")))
}

func TestWriter_TracksAsyncErrors(t *testing.T) {
	w := newFakeWriteAPI()
	ww := NewWriter(w, slog.New(&captureHandler{}))
	assert.Greater(t, ww.LastErrorAge(), time.Hour)

	w.errs <- errors.New("bucket not found")
	require.Eventually(t, func() bool { return ww.LastErrorAge() < time.Minute }, time.Second, time.Millisecond)

	var nilWriter *Writer
	assert.Greater(t, nilWriter.LastErrorAge(), time.Hour)
	assert.Zero(t, nilWriter.Count(1))
}

func TestRouter(t *testing.T) {
	f := newFixture(t, nil, 1)
	h := NewRouter(f.gw, f.reg, time.Second, nil)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Origin", "http://dashboard.local")
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNotFound, get("/packets/latest").Code)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	rec := get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	var st healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "ok", st.Status)
	assert.True(t, st.InfluxEnabled)

	require.NoError(t, f.gw.Handle(context.Background(), rylr896.Packet{Address: 1, Data: []byte(frame)}))
	rec = get("/packets/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest Received
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 3, latest.Packet.LahanID)

	// one failure trips a breaker configured with fails=1
	f.sink.err = errors.New("upstream down")
	_ = f.gw.Handle(context.Background(), rylr896.Packet{Address: 1, Data: []byte(frame)})

	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	require.NoError(t, json.Unmarshal(get("/healthz").Body.Bytes(), &st))
	assert.Equal(t, "down", st.Status)

	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}

func TestWatchHealth(t *testing.T) {
	f := newFixture(t, nil, 1)
	hs := health.NewServer()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WatchHealth(ctx, f.gw, hs, time.Second, time.Millisecond)
		close(done)
	}()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}
	require.Eventually(t, func() bool { return check() == healthpb.HealthCheckResponse_SERVING }, time.Second, time.Millisecond)

	f.sink.err = errors.New("upstream down")
	_ = f.gw.Handle(context.Background(), rylr896.Packet{Address: 1, Data: []byte(frame)})
	require.Eventually(t, func() bool { return check() == healthpb.HealthCheckResponse_NOT_SERVING }, time.Second, time.Millisecond)

	cancel()
	<-done
}
