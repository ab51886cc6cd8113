package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/i474232898/local-weather/internal/weather"
)

type AppConfig struct {
	// Weather provider selection. An unknown source leaves the agent without
	// a provider until one is set at runtime.
	WeatherSource string        `envconfig:"WEATHER_API_SOURCE" default:"openweathermap"`
	WeatherAPIKey string        `envconfig:"WEATHER_API_KEY"`
	QueryInterval time.Duration `envconfig:"WEATHER_QUERY_INTERVAL" default:"3h" validate:"gt=0"`
	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	HTTPMaxIdle   int           `envconfig:"HTTP_MAX_IDLE_CONNS" default:"10" validate:"gte=0"`

	// Observation key attached to emitted records.
	SourceID  string `envconfig:"SOURCE_ID"`
	ProjectID string `envconfig:"PROJECT_ID"`
	UserID    string `envconfig:"USER_ID"`

	PermissionFine   bool `envconfig:"LOCATION_PERMISSION_FINE" default:"true"`
	PermissionCoarse bool `envconfig:"LOCATION_PERMISSION_COARSE" default:"true"`

	GPSEnabled   bool   `envconfig:"LOCATION_GPS_ENABLED" default:"false"`
	MQTTBroker   string `envconfig:"MQTT_BROKER" default:"tcp://localhost:1883" validate:"required_if=GPSEnabled true"`
	MQTTClientID string `envconfig:"MQTT_CLIENT_ID" default:"local-weather"`
	GPSTopic     string `envconfig:"LOCATION_GPS_TOPIC" default:"device/location"`

	NetworkEnabled bool   `envconfig:"LOCATION_NETWORK_ENABLED" default:"true"`
	NetworkURL     string `envconfig:"LOCATION_NETWORK_URL" validate:"omitempty,url"`

	// Fixed fallback position; coordinates win over city and country.
	StaticLatitude  *float64 `envconfig:"LOCATION_STATIC_LAT" validate:"omitempty,latitude"`
	StaticLongitude *float64 `envconfig:"LOCATION_STATIC_LON" validate:"omitempty,longitude"`
	StaticCity      string   `envconfig:"LOCATION_STATIC_CITY"`
	StaticCountry   string   `envconfig:"LOCATION_STATIC_COUNTRY"`
	GeocoderAPIKey  string   `envconfig:"GEOCODER_API_KEY"`

	ProbeURL      string        `envconfig:"CONNECTIVITY_PROBE_URL" validate:"omitempty,url"`
	ProbeInterval time.Duration `envconfig:"CONNECTIVITY_PROBE_INTERVAL" default:"30s" validate:"gt=0"`

	SinkTypes        []string `envconfig:"SINK_TYPE" default:"memory" validate:"min=1,dive,oneof=memory kafka mqtt postgres"`
	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic       string   `envconfig:"KAFKA_TOPIC" default:"android_local_weather"`
	MQTTWeatherTopic string   `envconfig:"MQTT_WEATHER_TOPIC" default:"weather/local"`
	DatabaseDSN      string   `envconfig:"DATABASE_DSN"`
	MemoryHistory    int      `envconfig:"SINK_MEMORY_HISTORY" default:"96"` // roughly 12 days at 3-hour intervals

	Port           string `envconfig:"PORT" default:"8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Load reads configuration from the environment, after merging a .env file
// when one is present.
func Load() (*AppConfig, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if cfg.SourceID == "" {
		cfg.SourceID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and combinations between them.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if (c.StaticLatitude == nil) != (c.StaticLongitude == nil) {
		return fmt.Errorf("%w: LOCATION_STATIC_LAT and LOCATION_STATIC_LON must be set together", ErrInvalidConfig)
	}
	if (c.StaticCity == "") != (c.StaticCountry == "") {
		return fmt.Errorf("%w: LOCATION_STATIC_CITY and LOCATION_STATIC_COUNTRY must be set together", ErrInvalidConfig)
	}
	if c.HasSink("postgres") && c.DatabaseDSN == "" {
		return fmt.Errorf("%w: DATABASE_DSN is required for the postgres sink", ErrInvalidConfig)
	}
	return nil
}

// HasSink reports whether the named sink is enabled.
func (c *AppConfig) HasSink(name string) bool {
	for _, s := range c.SinkTypes {
		if s == name {
			return true
		}
	}
	return false
}

// ObservationKey returns the key attached to every emitted record.
func (c *AppConfig) ObservationKey() weather.ObservationKey {
	return weather.ObservationKey{
		ProjectID: c.ProjectID,
		UserID:    c.UserID,
		SourceID:  c.SourceID,
	}
}
