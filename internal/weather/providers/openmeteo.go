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

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// Open-Meteo needs no API key.
type OpenMeteoProvider struct {
	client
	now func() time.Time
}

func NewOpenMeteoProvider(httpClient *http.Client, opts ...Option) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		client: newClient("Open-Meteo", "https://api.open-meteo.com/v1/forecast", "", httpClient, opts),
		now:    time.Now,
	}
}

func (p *OpenMeteoProvider) ID() weather.ProviderID {
	return weather.ProviderOpenMeteo
}

func (p *OpenMeteoProvider) SourceName() string {
	return p.name
}

func (p *OpenMeteoProvider) LoadCurrentWeather(ctx context.Context, lat, lon float64) (weather.Result, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("current", "temperature_2m,relative_humidity_2m,surface_pressure,cloud_cover,precipitation,weather_code")
	values.Set("daily", "sunrise,sunset")
	values.Set("timeformat", "unixtime")
	values.Set("timezone", "GMT")
	values.Set("forecast_days", "1")

	var payload struct {
		Current *struct {
			Time          int64    `json:"time"`
			Temperature   *float64 `json:"temperature_2m"`
			Humidity      *float64 `json:"relative_humidity_2m"`
			Pressure      *float64 `json:"surface_pressure"`
			CloudCover    *float64 `json:"cloud_cover"`
			Precipitation *float64 `json:"precipitation"`
			WeatherCode   *int     `json:"weather_code"`
		} `json:"current"`
		Daily struct {
			Sunrise []int64 `json:"sunrise"`
			Sunset  []int64 `json:"sunset"`
		} `json:"daily"`
	}

	if err := p.getJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Result{}, p.transportError(lat, lon, err)
	}
	if payload.Current == nil {
		return weather.Result{}, p.transportError(lat, lon, fmt.Errorf("response contains no current conditions"))
	}
	cur := payload.Current

	observed := p.now().UTC()
	if cur.Time > 0 {
		observed = time.Unix(cur.Time, 0).UTC()
	}

	res := weather.Result{
		ProviderName: p.name,
		ObservedAt:   observed,
		Temperature:  cur.Temperature,
		Pressure:     cur.Pressure,
		Humidity:     cur.Humidity,
		Cloudiness:   cur.CloudCover,
		Condition:    weather.ConditionUnknown,
	}
	if cur.WeatherCode != nil {
		res.Condition = mapOpenMeteoCondition(*cur.WeatherCode)
	}
	if cur.Precipitation != nil {
		// Open-Meteo reports the sum of the preceding hour.
		res.PrecipitationAmount = cur.Precipitation
		res.PrecipitationPeriodHours = weather.Float(1)
	}
	if len(payload.Daily.Sunrise) > 0 {
		res.Sunrise = unixTime(&payload.Daily.Sunrise[0])
	}
	if len(payload.Daily.Sunset) > 0 {
		res.Sunset = unixTime(&payload.Daily.Sunset[0])
	}
	return res, nil
}

// mapOpenMeteoCondition maps WMO weather interpretation codes.
func mapOpenMeteoCondition(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionFoggy
	case code == 56 || code == 57 || code == 66 || code == 67:
		return weather.ConditionIcy
	case code >= 51 && code <= 55:
		return weather.ConditionDrizzle
	case (code >= 61 && code <= 65) || (code >= 80 && code <= 82):
		return weather.ConditionRainy
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnowy
	case code == 95:
		return weather.ConditionThunder
	case code == 96 || code == 99:
		return weather.ConditionStorm
	default:
		return weather.ConditionOther
	}
}
