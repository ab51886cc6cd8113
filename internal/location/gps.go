package location

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/i474232898/local-weather/internal/weather"
)

var validate = validator.New()

// gpsMessage is the payload published by the device's positioning daemon.
type gpsMessage struct {
	Latitude  *float64  `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64  `json:"longitude" validate:"required,gte=-180,lte=180"`
	Time      time.Time `json:"time"`
}

// GPSSource keeps the last GPS fix received over MQTT.
type GPSSource struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger

	mu  sync.RWMutex
	fix *weather.Fix
}

// NewGPSSource creates a source listening on topic. Call Subscribe once the
// client is connected.
func NewGPSSource(client mqtt.Client, topic string, logger *zap.Logger) *GPSSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GPSSource{
		client: client,
		topic:  topic,
		logger: logger.Named("gps"),
	}
}

func (s *GPSSource) Kind() weather.LocationSource {
	return weather.LocationGPS
}

// Subscribe starts receiving fixes.
func (s *GPSSource) Subscribe() error {
	if s.client == nil {
		return fmt.Errorf("gps source: mqtt client not configured")
	}
	token := s.client.Subscribe(s.topic, 1, s.handle)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.logger.Info("subscribed to gps fixes", zap.String("topic", s.topic))
	return nil
}

func (s *GPSSource) handle(_ mqtt.Client, msg mqtt.Message) {
	if err := s.Update(msg.Payload()); err != nil {
		s.logger.Warn("ignoring gps message", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

// Update parses a fix message and replaces the last known fix.
func (s *GPSSource) Update(payload []byte) error {
	var m gpsMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("decode gps fix: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid gps fix: %w", err)
	}

	fix := weather.Fix{
		Coordinates: weather.Coordinates{Latitude: *m.Latitude, Longitude: *m.Longitude},
		Source:      weather.LocationGPS,
		Time:        m.Time,
	}

	s.mu.Lock()
	s.fix = &fix
	s.mu.Unlock()
	return nil
}

func (s *GPSSource) LastKnown(context.Context) (weather.Fix, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fix == nil {
		return weather.Fix{}, false, nil
	}
	return *s.fix, true, nil
}

// Close stops receiving fixes.
func (s *GPSSource) Close() error {
	if s.client == nil || !s.client.IsConnected() {
		return nil
	}
	token := s.client.Unsubscribe(s.topic)
	token.WaitTimeout(2 * time.Second)
	return token.Error()
}
