package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/local-weather/internal/weather"
)

// DefaultTopic is the topic weather records are produced to.
const DefaultTopic = "android_local_weather"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces records keyed by the observation key.
type KafkaSink struct {
	writer messageWriter
	key    []byte
}

// NewKafkaWriter returns a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// NewKafkaSink wraps w. Every message carries key as its JSON-encoded key.
func NewKafkaSink(w messageWriter, key weather.ObservationKey) (*KafkaSink, error) {
	k, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("encode observation key: %w", err)
	}
	return &KafkaSink{writer: w, key: k}, nil
}

func (s *KafkaSink) Send(ctx context.Context, r weather.Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: s.key, Value: value}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
