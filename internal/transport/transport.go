// Package transport holds one formatter and one sink per uplink: the Google
// Sheets web app over HTTP, an MQTT broker, a LoRa radio and InfluxDB.
package transport

import (
	"context"
	"fmt"
	"strings"
)

// Sink delivers an already formatted payload. A returned error is final for
// the tick; sinks do not retry.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, payload []byte) error

func (f SinkFunc) Send(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Kind names a transport profile.
type Kind string

const (
	KindHTTP   Kind = "http"
	KindMQTT   Kind = "mqtt"
	KindLoRa   Kind = "lora"
	KindInflux Kind = "influx"
)

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindHTTP, KindMQTT, KindLoRa, KindInflux:
		return k, nil
	}
	return "", fmt.Errorf("unknown transport %q (allowed: http, mqtt, lora, influx)", s)
}
