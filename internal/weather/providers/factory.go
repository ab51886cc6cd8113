package providers

import (
	"fmt"
	"net/http"

	"github.com/i474232898/local-weather/internal/weather"
)

// New constructs the provider selected by cfg. All providers share httpClient.
func New(cfg weather.ProviderConfig, httpClient *http.Client, opts ...Option) (weather.Provider, error) {
	switch cfg.ProviderID {
	case weather.ProviderOpenWeatherMap:
		return NewOpenWeatherProvider(httpClient, cfg.APIKey, opts...), nil
	case weather.ProviderWeatherAPI:
		return NewWeatherAPIProvider(httpClient, cfg.APIKey, opts...), nil
	case weather.ProviderOpenMeteo:
		return NewOpenMeteoProvider(httpClient, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", weather.ErrUnrecognizedProvider, cfg.ProviderID)
	}
}

// Factory binds New to a shared HTTP client for use by weather.Service.
func Factory(httpClient *http.Client, opts ...Option) weather.ProviderFactory {
	return func(cfg weather.ProviderConfig) (weather.Provider, error) {
		return New(cfg, httpClient, opts...)
	}
}
