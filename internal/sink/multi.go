package sink

import (
	"context"
	"errors"
	"io"

	"github.com/i474232898/local-weather/internal/weather"
)

// Multi delivers every record to all of its sinks. A failing sink does not
// stop delivery to the others.
type Multi []weather.Sink

func (m Multi) Send(ctx context.Context, r weather.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
