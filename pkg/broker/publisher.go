package broker

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("broker: not connected")

const publishTimeout = 5 * time.Second

// IPublisher publishes on a fixed topic.
type IPublisher interface {
	PublishMessage(message interface{}) error
}

type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewPublisher publishes at QoS 0, fire and forget.
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Topic() string { return p.topic }

// PublishMessage accepts a string or a byte slice.
func (p *Publisher) PublishMessage(message interface{}) error {
	switch message.(type) {
	case string, []byte:
	default:
		return fmt.Errorf("invalid message format %T, expected string or []byte", message)
	}
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := p.client.Publish(p.topic, p.qos, false, message)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
