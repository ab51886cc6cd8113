package weather

import (
	"context"
	"strings"
)

// ProviderID selects one of the supported weather APIs.
type ProviderID string

const (
	ProviderOpenWeatherMap ProviderID = "openweathermap"
	ProviderWeatherAPI     ProviderID = "weatherapi"
	ProviderOpenMeteo      ProviderID = "openmeteo"
	ProviderUnrecognized   ProviderID = ""
)

// ParseProviderID matches s case-insensitively against the supported
// providers and returns ProviderUnrecognized when none match.
func ParseProviderID(s string) ProviderID {
	switch ProviderID(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOpenWeatherMap:
		return ProviderOpenWeatherMap
	case ProviderWeatherAPI:
		return ProviderWeatherAPI
	case ProviderOpenMeteo:
		return ProviderOpenMeteo
	default:
		return ProviderUnrecognized
	}
}

// ProviderConfig is the input of a source configuration call.
type ProviderConfig struct {
	ProviderID ProviderID
	APIKey     string
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
type Provider interface {
	ID() ProviderID
	SourceName() string
	LoadCurrentWeather(ctx context.Context, lat, lon float64) (Result, error)
}

// ProviderFactory builds a Provider for a recognized configuration.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

// Sink accepts finished records for downstream delivery.
type Sink interface {
	Send(ctx context.Context, rec Record) error
}

// LocationResolver returns the best available last known position.
type LocationResolver interface {
	LastKnownLocation(ctx context.Context) (Fix, bool)
}

// ConnectivityChecker reports whether the network is currently reachable.
type ConnectivityChecker interface {
	Connected() bool
}
