package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/i474232898/local-weather/internal/weather"
)

// DefaultNetworkURL is an IP geolocation endpoint answering with
// {"status":"success","lat":..,"lon":..}.
const DefaultNetworkURL = "http://ip-api.com/json"

type ipLookup struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// NetworkSource derives a coarse position from the device's public IP
// address. A failed lookup falls back to the previous fix.
type NetworkSource struct {
	client *resty.Client
	url    string
	now    func() time.Time

	mu   sync.Mutex
	last *weather.Fix
}

// NewNetworkSource creates a source querying url with the given timeout.
func NewNetworkSource(url string, timeout time.Duration) *NetworkSource {
	if url == "" {
		url = DefaultNetworkURL
	}
	return &NetworkSource{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		now:    time.Now,
	}
}

func (s *NetworkSource) Kind() weather.LocationSource {
	return weather.LocationNetwork
}

func (s *NetworkSource) LastKnown(ctx context.Context) (weather.Fix, bool, error) {
	fix, err := s.lookup(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.last != nil {
			return *s.last, true, nil
		}
		return weather.Fix{}, false, err
	}
	s.last = &fix
	return fix, true, nil
}

func (s *NetworkSource) lookup(ctx context.Context) (weather.Fix, error) {
	var out ipLookup
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&out).
		Get(s.url)
	if err != nil {
		return weather.Fix{}, fmt.Errorf("ip geolocation request: %w", err)
	}
	if resp.IsError() {
		return weather.Fix{}, fmt.Errorf("ip geolocation: unexpected status %d", resp.StatusCode())
	}
	if out.Status != "success" || out.Lat == nil || out.Lon == nil {
		return weather.Fix{}, fmt.Errorf("ip geolocation failed: %s", out.Message)
	}

	return weather.Fix{
		Coordinates: weather.Coordinates{Latitude: *out.Lat, Longitude: *out.Lon},
		Source:      weather.LocationNetwork,
		Time:        s.now().UTC(),
	}, nil
}
