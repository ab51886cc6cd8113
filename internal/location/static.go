package location

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/local-weather/internal/weather"
)

// geocode is swapped in tests.
var geocode = geocoder.Geocoding

// StaticSource reports a configured position, either given directly or
// geocoded once from an address.
type StaticSource struct {
	address geocoder.Address

	coords *weather.Coordinates

	mu  sync.Mutex
	fix *weather.Fix
}

// NewStaticSource returns a source for fixed coordinates.
func NewStaticSource(lat, lon float64) *StaticSource {
	return &StaticSource{coords: &weather.Coordinates{Latitude: lat, Longitude: lon}}
}

// NewGeocodedSource returns a source that resolves city and country through
// the Google geocoding API on first use.
func NewGeocodedSource(apiKey, city, country string) *StaticSource {
	geocoder.ApiKey = apiKey
	return &StaticSource{address: geocoder.Address{City: city, Country: country}}
}

func (s *StaticSource) Kind() weather.LocationSource {
	return weather.LocationOther
}

// LastKnown geocodes at most once successfully; failures are retried on the
// next call.
func (s *StaticSource) LastKnown(context.Context) (weather.Fix, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fix != nil {
		return *s.fix, true, nil
	}
	if s.coords != nil {
		s.fix = &weather.Fix{Coordinates: *s.coords, Source: weather.LocationOther}
		return *s.fix, true, nil
	}

	loc, err := geocode(s.address)
	if err != nil {
		return weather.Fix{}, false, fmt.Errorf("geocode %s, %s: %w", s.address.City, s.address.Country, err)
	}
	s.fix = &weather.Fix{
		Coordinates: weather.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude},
		Source:      weather.LocationOther,
	}
	return *s.fix, true, nil
}
