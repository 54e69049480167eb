package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
)

// Writer wraps the async WriteAPI and tracks the last write error for the
// health endpoints.
type Writer struct {
	api api.WriteAPI
	now func() time.Time

	mu      sync.RWMutex
	lastErr time.Time
	counts  map[int]int64
}

func NewWriter(w api.WriteAPI, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	ww := &Writer{
		api:    w,
		now:    time.Now,
		counts: make(map[int]int64),
	}
	ww.lastErr = ww.now().Add(-24 * time.Hour)
	go func() {
		for err := range w.Errors() {
			if err == nil {
				continue
			}
			ww.mu.Lock()
			ww.lastErr = ww.now()
			ww.mu.Unlock()
			log.Error("gateway: influx write error", "err", err)
		}
	}()
	return ww
}

// Write queues one reading; errors surface asynchronously.
func (w *Writer) Write(measurement string, r model.Reading, t time.Time) {
	w.api.WritePoint(transport.ReadingPoint(measurement, r, t))
	w.mu.Lock()
	w.counts[r.FieldID]++
	w.mu.Unlock()
}

// LastErrorAge is how long ago the last write error happened. A nil writer
// never fails.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return w.now().Sub(t)
}

// Count is the number of points queued for one field.
func (w *Writer) Count(fieldID int) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counts[fieldID]
}

func (w *Writer) Flush() {
	if w != nil {
		w.api.Flush()
	}
}
