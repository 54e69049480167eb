package transport

import (
	"context"
	"encoding/json"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/internal/model/messages"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/broker"
)

// FlatJSON renders the broker document.
type FlatJSON struct{}

func (FlatJSON) Format(r model.Reading) ([]byte, error) {
	return json.Marshal(messages.NewFlatDocument(r))
}

type MQTTSink struct {
	pub broker.IPublisher
}

func NewMQTTSink(pub broker.IPublisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

func (s *MQTTSink) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.pub.PublishMessage(payload)
}
