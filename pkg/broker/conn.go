package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

type Config struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	ClientIDPrefix string `yaml:"client_id_prefix"`
	Topic          string `yaml:"topic"`
	Echo           bool   `yaml:"echo"` // subscribe to Topic and log what comes back
}

// ClientID returns the prefix plus a random suffix, so two nodes flashed with
// the same profile never kick each other off the broker.
func (c Config) ClientID() string {
	prefix := c.ClientIDPrefix
	if prefix == "" {
		prefix = "field-node"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// Connect dials the broker, retrying with exponential backoff. Once connected
// paho reconnects on its own. The client is disconnected when ctx ends.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (mqtt.Client, error) {
	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	clientID := cfg.ClientID()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("broker: connection lost", "err", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Info("broker: reconnecting", "broker", connAddr)
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn("broker: failed to connect", "broker", connAddr, "err", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Info("broker: connected", "broker", connAddr, "client_id", clientID)

	go func() {
		<-ctx.Done()
		Close(client, log)
	}()
	return client, nil
}

func Close(client mqtt.Client, log *slog.Logger) {
	if client.IsConnected() {
		client.Disconnect(250)
		log.Info("broker: connection closed")
	}
}
