package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/local-weather/internal/weather"
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each record as a retained JSON message.
type MQTTSink struct {
	client  publisher
	topic   string
	timeout time.Duration
}

func NewMQTTSink(client publisher, topic string, timeout time.Duration) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, timeout: timeout}
}

func (s *MQTTSink) Send(ctx context.Context, r weather.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	token := s.client.Publish(s.topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.timeout):
		return fmt.Errorf("mqtt publish to %s: timed out after %s", s.topic, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", s.topic, err)
	}
	return nil
}
