package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/local-weather/internal/weather"
)

var (
	errRateLimited  = errors.New("rate limited")
	errUnauthorized = errors.New("invalid api key")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// Option customizes a provider client.
type Option func(*client)

// WithBaseURL points the provider at a different endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithBreakerSettings replaces the default circuit breaker settings. Name is
// always set to the provider name.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *client) { c.breaker = st }
}

// client bundles what every provider needs to talk to its API.
type client struct {
	name    string
	apiKey  string
	baseURL string
	http    *http.Client
	breaker gobreaker.Settings
	circuit *gobreaker.CircuitBreaker
}

func newClient(name, baseURL, apiKey string, httpClient *http.Client, opts []Option) client {
	c := client{
		name:    name,
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpClient,
		breaker: gobreaker.Settings{
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.breaker.Name = name
	c.circuit = gobreaker.NewCircuitBreaker(c.breaker)
	return c
}

// NewHTTPClient returns the shared client used for all outbound provider
// calls. Connections are pooled and every request is bounded by timeout.
func NewHTTPClient(timeout time.Duration, maxIdleConns int) *http.Client {
	if maxIdleConns <= 0 {
		maxIdleConns = 10
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// getJSON executes a single GET through the circuit breaker and decodes the
// JSON body into out. There is no retry; the next scheduled cycle retries.
func (c *client) getJSON(ctx context.Context, u string, out any) error {
	if c.http == nil {
		return errNoHTTPClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, execErr := c.http.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		if statusErr := checkStatus(resp.StatusCode); statusErr != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, statusErr
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return fmt.Errorf("unexpected result type from circuit breaker")
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse weather data: %w", err)
	}
	return nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errUnauthorized
	case code == http.StatusTooManyRequests:
		return errRateLimited
	case code >= 500:
		return errServerError
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: %d", errUnexpected, code)
	}
	return nil
}

func (c *client) transportError(lat, lon float64, err error) error {
	return &weather.TransportError{
		Provider:  c.name,
		Latitude:  lat,
		Longitude: lon,
		Err:       err,
	}
}

func unixTime(sec *int64) *time.Time {
	if sec == nil || *sec == 0 {
		return nil
	}
	return weather.Time(time.Unix(*sec, 0))
}
