package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is matched by every TransportError.
	ErrTransport = errors.New("weather provider transport failure")
	// ErrNoLocation is reported when no positioning source has a fix.
	ErrNoLocation = errors.New("no location available")
	// ErrNoProvider is reported when no provider has been configured.
	ErrNoProvider = errors.New("no weather provider configured")
	// ErrUnrecognizedProvider is returned by SetSource for unknown provider IDs.
	ErrUnrecognizedProvider = errors.New("weather provider not recognized")
)

// TransportError wraps network, status and decoding failures of a provider call.
type TransportError struct {
	Provider  string
	Latitude  float64
	Longitude float64
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("could not get weather data from the %s API for latitude %f and longitude %f: %v",
		e.Provider, e.Latitude, e.Longitude, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) hold for any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
