package transport

import (
	"context"
	"encoding/json"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/internal/model/messages"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/rylr896"
)

// PacketJSON renders the radio frame. Frames that would not fit in one
// radio payload are rejected here, before the gate commits them.
type PacketJSON struct{}

func (PacketJSON) Format(r model.Reading) ([]byte, error) {
	b, err := json.Marshal(messages.NewSensorPacket(r))
	if err != nil {
		return nil, err
	}
	if len(b) > rylr896.MaxPayload {
		return nil, rylr896.ErrPayloadTooLarge
	}
	return b, nil
}

type Radio interface {
	Send(ctx context.Context, addr int, payload []byte) error
}

type LoRaSink struct {
	radio Radio
	dest  int
}

// NewLoRaSink sends to dest; address 0 is the module's broadcast address.
func NewLoRaSink(radio Radio, dest int) *LoRaSink {
	return &LoRaSink{radio: radio, dest: dest}
}

func (s *LoRaSink) Send(ctx context.Context, payload []byte) error {
	return s.radio.Send(ctx, s.dest, payload)
}
