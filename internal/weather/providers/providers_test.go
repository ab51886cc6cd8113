package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/i474232898/local-weather/internal/weather"
)

func newJSONServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenWeatherProvider_LoadCurrentWeather(t *testing.T) {
	body := `{
		"dt": 1700000000,
		"weather": [{"id": 800, "main": "Clear"}],
		"main": {"temp": 10.5, "pressure": 1012, "humidity": 81},
		"clouds": {"all": 5},
		"rain": {"3h": 1.25},
		"snow": {"3h": 0.5},
		"sys": {"sunrise": 1699975000, "sunset": 1700008000}
	}`
	srv := newJSONServer(t, http.StatusOK, body, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "52.08", q.Get("lat"))
		assert.Equal(t, "4.31", q.Get("lon"))
		assert.Equal(t, "XYZ", q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))
	})

	p := NewOpenWeatherProvider(srv.Client(), "XYZ", WithBaseURL(srv.URL))
	res, err := p.LoadCurrentWeather(context.Background(), 52.08, 4.31)
	require.NoError(t, err)

	assert.Equal(t, "OpenWeatherMap", res.ProviderName)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), res.ObservedAt)
	require.NotNil(t, res.Temperature)
	assert.Equal(t, 10.5, *res.Temperature)
	assert.Equal(t, 1012.0, *res.Pressure)
	assert.Equal(t, 81.0, *res.Humidity)
	assert.Equal(t, 5.0, *res.Cloudiness)
	assert.Equal(t, 1.75, *res.PrecipitationAmount)
	assert.Equal(t, 3.0, *res.PrecipitationPeriodHours)
	assert.Equal(t, weather.ConditionClear, res.Condition)
	require.NotNil(t, res.Sunrise)
	assert.Equal(t, time.Unix(1699975000, 0).UTC(), *res.Sunrise)
	require.NotNil(t, res.Sunset)
}

func TestOpenWeatherProvider_MissingFieldsAreNil(t *testing.T) {
	srv := newJSONServer(t, http.StatusOK, `{"weather":[{"id":500}],"rain":{"1h":0.4}}`, nil)

	p := NewOpenWeatherProvider(srv.Client(), "XYZ", WithBaseURL(srv.URL))
	res, err := p.LoadCurrentWeather(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Nil(t, res.Temperature)
	assert.Nil(t, res.Cloudiness)
	assert.Nil(t, res.Sunrise)
	assert.Equal(t, 0.4, *res.PrecipitationAmount)
	assert.Equal(t, 1.0, *res.PrecipitationPeriodHours)
	assert.Equal(t, weather.ConditionRainy, res.Condition)
	assert.False(t, res.ObservedAt.IsZero())
}

func TestOpenWeatherProvider_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"cod":401}`},
		{name: "server error", status: http.StatusBadGateway, body: ``},
		{name: "rate limited", status: http.StatusTooManyRequests, body: ``},
		{name: "not json", status: http.StatusOK, body: `<html>`},
		{name: "empty object", status: http.StatusOK, body: `{}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newJSONServer(t, tc.status, tc.body, nil)
			p := NewOpenWeatherProvider(srv.Client(), "XYZ", WithBaseURL(srv.URL))

			_, err := p.LoadCurrentWeather(context.Background(), 52.08, 4.31)
			require.Error(t, err)
			assert.True(t, errors.Is(err, weather.ErrTransport))

			var te *weather.TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, "OpenWeatherMap", te.Provider)
		})
	}
}

func TestOpenWeatherProvider_NoAPIKey(t *testing.T) {
	p := NewOpenWeatherProvider(http.DefaultClient, "")
	_, err := p.LoadCurrentWeather(context.Background(), 0, 0)
	assert.ErrorIs(t, err, weather.ErrTransport)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := newJSONServer(t, http.StatusInternalServerError, ``, func(*http.Request) { calls.Inc() })

	p := NewOpenWeatherProvider(srv.Client(), "XYZ",
		WithBaseURL(srv.URL),
		WithBreakerSettings(gobreaker.Settings{
			Timeout: time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 2
			},
		}))

	for i := 0; i < 4; i++ {
		_, err := p.LoadCurrentWeather(context.Background(), 1, 1)
		require.ErrorIs(t, err, weather.ErrTransport)
	}
	assert.Equal(t, int32(2), calls.Load())

	_, err := p.LoadCurrentWeather(context.Background(), 1, 1)
	assert.ErrorIs(t, err, errCircuitOpen)
}

func TestTranslateOpenWeatherCode(t *testing.T) {
	tests := map[int]weather.Condition{
		211: weather.ConditionThunder,
		301: weather.ConditionDrizzle,
		502: weather.ConditionRainy,
		601: weather.ConditionSnowy,
		741: weather.ConditionFoggy,
		711: weather.ConditionOther,
		800: weather.ConditionClear,
		804: weather.ConditionCloudy,
		902: weather.ConditionStorm,
		960: weather.ConditionStorm,
		906: weather.ConditionIcy,
		100: weather.ConditionOther,
	}
	for code, want := range tests {
		assert.Equal(t, want, translateOpenWeatherCode(code), "code %d", code)
	}
	assert.Equal(t, weather.ConditionUnknown, mapOpenWeatherCondition(nil))
}

func TestWeatherAPIProvider_LoadCurrentWeather(t *testing.T) {
	body := `{"current": {
		"last_updated_epoch": 1700000100,
		"temp_c": 7.2, "humidity": 90, "pressure_mb": 1001, "cloud": 75, "precip_mm": 0.3,
		"condition": {"text": "Patchy light drizzle"}
	}}`
	srv := newJSONServer(t, http.StatusOK, body, func(r *http.Request) {
		assert.Equal(t, "52.08,4.31", r.URL.Query().Get("q"))
		assert.Equal(t, "key-1", r.URL.Query().Get("key"))
	})

	p := NewWeatherAPIProvider(srv.Client(), "key-1", WithBaseURL(srv.URL))
	res, err := p.LoadCurrentWeather(context.Background(), 52.08, 4.31)
	require.NoError(t, err)

	assert.Equal(t, "WeatherAPI", res.ProviderName)
	assert.Equal(t, 7.2, *res.Temperature)
	assert.Equal(t, 75.0, *res.Cloudiness)
	assert.Equal(t, 0.3, *res.PrecipitationAmount)
	assert.Equal(t, 1.0, *res.PrecipitationPeriodHours)
	assert.Equal(t, weather.ConditionDrizzle, res.Condition)
	assert.Nil(t, res.Sunrise)
}

func TestMapWeatherAPICondition(t *testing.T) {
	tests := map[string]weather.Condition{
		"":                           weather.ConditionUnknown,
		"Sunny":                      weather.ConditionClear,
		"Partly cloudy":              weather.ConditionCloudy,
		"Overcast":                   weather.ConditionCloudy,
		"Mist":                       weather.ConditionFoggy,
		"Moderate rain":              weather.ConditionRainy,
		"Light snow showers":         weather.ConditionSnowy,
		"Heavy snow":                 weather.ConditionSnowy,
		"Freezing drizzle":           weather.ConditionIcy,
		"Thundery outbreaks nearby":  weather.ConditionThunder,
		"Blizzard":                   weather.ConditionStorm,
		"Something entirely unusual": weather.ConditionOther,
	}
	for text, want := range tests {
		assert.Equal(t, want, mapWeatherAPICondition(text), text)
	}
}

func TestOpenMeteoProvider_LoadCurrentWeather(t *testing.T) {
	body := `{
		"current": {"time": 1700000400, "temperature_2m": -1.5, "relative_humidity_2m": 60,
			"surface_pressure": 990.4, "cloud_cover": 100, "precipitation": 2.1, "weather_code": 73},
		"daily": {"sunrise": [1699975000], "sunset": [1700008000]}
	}`
	srv := newJSONServer(t, http.StatusOK, body, func(r *http.Request) {
		assert.Equal(t, "unixtime", r.URL.Query().Get("timeformat"))
		assert.Equal(t, "52.08", r.URL.Query().Get("latitude"))
	})

	p := NewOpenMeteoProvider(srv.Client(), WithBaseURL(srv.URL))
	res, err := p.LoadCurrentWeather(context.Background(), 52.08, 4.31)
	require.NoError(t, err)

	assert.Equal(t, "Open-Meteo", res.ProviderName)
	assert.Equal(t, -1.5, *res.Temperature)
	assert.Equal(t, weather.ConditionSnowy, res.Condition)
	assert.Equal(t, 1.0, *res.PrecipitationPeriodHours)
	require.NotNil(t, res.Sunset)
	assert.Equal(t, time.Unix(1700008000, 0).UTC(), *res.Sunset)
}

func TestNew(t *testing.T) {
	for _, id := range []weather.ProviderID{
		weather.ProviderOpenWeatherMap,
		weather.ProviderWeatherAPI,
		weather.ProviderOpenMeteo,
	} {
		p, err := New(weather.ProviderConfig{ProviderID: id, APIKey: "k"}, http.DefaultClient)
		require.NoError(t, err)
		assert.Equal(t, id, p.ID())
	}

	p, err := New(weather.ProviderConfig{ProviderID: weather.ProviderUnrecognized}, http.DefaultClient)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, weather.ErrUnrecognizedProvider)
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(5*time.Second, 0)
	assert.Equal(t, 5*time.Second, c.Timeout)
	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, tr.MaxIdleConnsPerHost)
}
