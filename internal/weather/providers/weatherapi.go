package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/local-weather/internal/common"
	"github.com/i474232898/local-weather/internal/weather"
)

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	client
	now func() time.Time
}

func NewWeatherAPIProvider(httpClient *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		client: newClient("WeatherAPI", "https://api.weatherapi.com/v1/current.json", apiKey, httpClient, opts),
		now:    time.Now,
	}
}

func (p *WeatherAPIProvider) ID() weather.ProviderID {
	return weather.ProviderWeatherAPI
}

func (p *WeatherAPIProvider) SourceName() string {
	return p.name
}

func (p *WeatherAPIProvider) LoadCurrentWeather(ctx context.Context, lat, lon float64) (weather.Result, error) {
	if p.apiKey == "" {
		return weather.Result{}, p.transportError(lat, lon, fmt.Errorf("weatherapi api key is not configured"))
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))

	var payload struct {
		Current *struct {
			LastUpdatedEpoch int64    `json:"last_updated_epoch"`
			TempC            *float64 `json:"temp_c"`
			Humidity         *float64 `json:"humidity"`
			PressureMb       *float64 `json:"pressure_mb"`
			Cloud            *float64 `json:"cloud"`
			PrecipMm         *float64 `json:"precip_mm"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}

	if err := p.getJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.Result{}, p.transportError(lat, lon, err)
	}
	if payload.Current == nil {
		return weather.Result{}, p.transportError(lat, lon, fmt.Errorf("response contains no current conditions"))
	}
	cur := payload.Current

	observed := p.now().UTC()
	if cur.LastUpdatedEpoch > 0 {
		observed = time.Unix(cur.LastUpdatedEpoch, 0).UTC()
	}

	res := weather.Result{
		ProviderName: p.name,
		ObservedAt:   observed,
		Temperature:  cur.TempC,
		Pressure:     cur.PressureMb,
		Humidity:     cur.Humidity,
		Cloudiness:   cur.Cloud,
		Condition:    mapWeatherAPICondition(cur.Condition.Text),
	}
	if cur.PrecipMm != nil {
		res.PrecipitationAmount = cur.PrecipMm
		res.PrecipitationPeriodHours = weather.Float(1)
	}
	return res, nil
}

func mapWeatherAPICondition(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.HasAny(text, "thunder"):
		return weather.ConditionThunder
	case common.HasAny(text, "blizzard", "storm"):
		return weather.ConditionStorm
	case common.HasAny(text, "ice pellets", "freezing"):
		return weather.ConditionIcy
	case common.HasAny(text, "drizzle"):
		return weather.ConditionDrizzle
	case common.HasAny(text, "snow", "sleet"):
		return weather.ConditionSnowy
	case common.HasAny(text, "rain", "shower"):
		return weather.ConditionRainy
	case common.HasAny(text, "fog", "mist"):
		return weather.ConditionFoggy
	case common.HasAny(text, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(text, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionOther
	}
}
