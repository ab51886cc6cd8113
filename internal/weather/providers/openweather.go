package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/local-weather/internal/weather"
)

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	client
	now func() time.Time
}

func NewOpenWeatherProvider(httpClient *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		client: newClient("OpenWeatherMap", "https://api.openweathermap.org/data/2.5/weather", apiKey, httpClient, opts),
		now:    time.Now,
	}
}

func (p *OpenWeatherProvider) ID() weather.ProviderID {
	return weather.ProviderOpenWeatherMap
}

func (p *OpenWeatherProvider) SourceName() string {
	return p.name
}

type owmPrecipitation struct {
	OneH   *float64 `json:"1h"`
	ThreeH *float64 `json:"3h"`
}

type owmPayload struct {
	Dt   int64 `json:"dt"`
	Main *struct {
		Temp     *float64 `json:"temp"`
		Pressure *float64 `json:"pressure"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Clouds *struct {
		All *float64 `json:"all"`
	} `json:"clouds"`
	Rain    *owmPrecipitation `json:"rain"`
	Snow    *owmPrecipitation `json:"snow"`
	Weather []struct {
		ID int `json:"id"`
	} `json:"weather"`
	Sys *struct {
		Sunrise *int64 `json:"sunrise"`
		Sunset  *int64 `json:"sunset"`
	} `json:"sys"`
}

func (p *OpenWeatherProvider) LoadCurrentWeather(ctx context.Context, lat, lon float64) (weather.Result, error) {
	if p.apiKey == "" {
		return weather.Result{}, p.transportError(lat, lon, fmt.Errorf("openweathermap api key is not configured"))
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lang", "en")

	var payload owmPayload
	if err := p.getJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Result{}, p.transportError(lat, lon, err)
	}
	if payload.Main == nil && len(payload.Weather) == 0 {
		return weather.Result{}, p.transportError(lat, lon, fmt.Errorf("response contains no weather data"))
	}

	observed := p.now().UTC()
	if payload.Dt > 0 {
		observed = time.Unix(payload.Dt, 0).UTC()
	}

	res := weather.Result{
		ProviderName: p.name,
		ObservedAt:   observed,
		Condition:    mapOpenWeatherCondition(payload.Weather),
	}
	if payload.Main != nil {
		res.Temperature = payload.Main.Temp
		res.Pressure = payload.Main.Pressure
		res.Humidity = payload.Main.Humidity
	}
	if payload.Clouds != nil {
		res.Cloudiness = payload.Clouds.All
	}
	if payload.Sys != nil {
		res.Sunrise = unixTime(payload.Sys.Sunrise)
		res.Sunset = unixTime(payload.Sys.Sunset)
	}
	res.PrecipitationAmount, res.PrecipitationPeriodHours = owmPrecipitationTotal(payload.Rain, payload.Snow)

	return res, nil
}

// owmPrecipitationTotal sums rain and snow. The 3 hour window is preferred;
// the 1 hour window is used when no 3 hour value is reported.
func owmPrecipitationTotal(rain, snow *owmPrecipitation) (*float64, *float64) {
	if rain == nil && snow == nil {
		return nil, nil
	}

	sum := func(pick func(*owmPrecipitation) *float64) (float64, bool) {
		var total float64
		var found bool
		for _, p := range []*owmPrecipitation{rain, snow} {
			if p == nil {
				continue
			}
			if v := pick(p); v != nil {
				total += *v
				found = true
			}
		}
		return total, found
	}

	if total, ok := sum(func(p *owmPrecipitation) *float64 { return p.ThreeH }); ok {
		return weather.Float(total), weather.Float(3)
	}
	if total, ok := sum(func(p *owmPrecipitation) *float64 { return p.OneH }); ok {
		return weather.Float(total), weather.Float(1)
	}
	return nil, nil
}

func mapOpenWeatherCondition(items []struct {
	ID int `json:"id"`
}) weather.Condition {
	if len(items) == 0 {
		return weather.ConditionUnknown
	}
	return translateOpenWeatherCode(items[0].ID)
}

// translateOpenWeatherCode maps the OpenWeatherMap condition codes of the
// primary weather entry.
func translateOpenWeatherCode(code int) weather.Condition {
	switch {
	case code >= 200 && code < 300:
		return weather.ConditionThunder
	case code >= 300 && code < 400:
		return weather.ConditionDrizzle
	case code >= 500 && code < 600:
		return weather.ConditionRainy
	case code >= 600 && code < 700:
		return weather.ConditionSnowy
	case code == 701 || code == 721 || code == 741:
		return weather.ConditionFoggy
	case code == 800:
		return weather.ConditionClear
	case code > 800 && code < 900:
		return weather.ConditionCloudy
	case code == 900 || code == 901 || code == 902 || code == 905 || code >= 957:
		// tornado, tropical storm, hurricane, windy, high wind
		return weather.ConditionStorm
	case code == 906:
		return weather.ConditionIcy
	default:
		return weather.ConditionOther
	}
}
