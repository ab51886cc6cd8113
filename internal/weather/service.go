package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Outcome is the terminal state of one fetch cycle.
type Outcome string

const (
	OutcomeNoLocation     Outcome = "no_location"
	OutcomeNoProvider     Outcome = "no_provider"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeEmitted        Outcome = "emitted"
)

// CycleObserver is notified once per finished cycle.
type CycleObserver interface {
	ObserveCycle(outcome string, elapsed time.Duration)
}

// Option customizes a Service.
type Option func(*Service)

// WithConnectivity sets the advisory connectivity check.
func WithConnectivity(c ConnectivityChecker) Option {
	return func(s *Service) { s.connectivity = c }
}

// WithClock overrides the wall clock used for QueriedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver registers a per-cycle observer, typically metrics.
func WithObserver(o CycleObserver) Option {
	return func(s *Service) { s.observer = o }
}

// Service orchestrates location lookup, the provider call and record emission.
type Service struct {
	resolver     LocationResolver
	sink         Sink
	factory      ProviderFactory
	connectivity ConnectivityChecker
	observer     CycleObserver
	now          func() time.Time
	logger       *zap.Logger

	mu       sync.RWMutex
	provider Provider
}

// NewService creates a new Service. No provider is active until SetSource succeeds.
func NewService(resolver LocationResolver, sink Sink, factory ProviderFactory, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		resolver: resolver,
		sink:     sink,
		factory:  factory,
		now:      time.Now,
		logger:   logger.Named("weather"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSource selects and constructs the active provider. Unrecognized
// provider IDs are rejected and leave the active provider unchanged.
func (s *Service) SetSource(source, apiKey string) error {
	id := ParseProviderID(source)
	if id == ProviderUnrecognized {
		s.logger.Error("weather api is not recognised, please set a different weather api source",
			zap.String("source", source))
		return fmt.Errorf("%w: %q", ErrUnrecognizedProvider, source)
	}

	if s.factory == nil {
		s.logger.Error("cannot create weather provider without a factory", zap.String("source", source))
		return fmt.Errorf("set source %q: %w", source, ErrNoProvider)
	}

	p, err := s.factory(ProviderConfig{ProviderID: id, APIKey: apiKey})
	if err != nil {
		s.logger.Error("failed to create weather provider", zap.String("source", source), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()

	s.logger.Info("weather provider configured",
		zap.String("provider", string(id)),
		zap.Bool("api_key_set", apiKey != ""))
	return nil
}

// ActiveProvider returns the currently configured provider, or nil.
func (s *Service) ActiveProvider() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// Run is the scheduler task body.
func (s *Service) Run(ctx context.Context) {
	s.RunCycle(ctx)
}

// RunCycle executes one fetch cycle. It never panics on provider or sink
// failures and emits at most one record.
func (s *Service) RunCycle(ctx context.Context) Outcome {
	start := time.Now()
	outcome := s.runCycle(ctx)
	if s.observer != nil {
		s.observer.ObserveCycle(string(outcome), time.Since(start))
	}
	return outcome
}

func (s *Service) runCycle(ctx context.Context) Outcome {
	if s.connectivity != nil && !s.connectivity.Connected() {
		s.logger.Warn("no internet connection, attempting weather query anyway")
	}

	var (
		fix Fix
		ok  bool
	)
	if s.resolver != nil {
		fix, ok = s.resolver.LastKnownLocation(ctx)
	}
	if !ok {
		s.logger.Error("could not retrieve location, no input for weather api", zap.Error(ErrNoLocation))
		return OutcomeNoLocation
	}

	// One snapshot per cycle; a concurrent SetSource applies to the next cycle.
	api := s.ActiveProvider()
	if api == nil {
		s.logger.Debug("skipping weather query", zap.Error(ErrNoProvider))
		return OutcomeNoProvider
	}

	result, err := api.LoadCurrentWeather(ctx, fix.Latitude, fix.Longitude)
	if err != nil {
		fields := []zap.Field{
			zap.String("provider", api.SourceName()),
			zap.Error(err),
		}
		if !errors.Is(err, ErrTransport) {
			fields = append(fields, zap.Bool("unclassified", true))
		}
		s.logger.Error("could not get weather from api", fields...)
		return OutcomeTransportError
	}
	if result.ProviderName == "" {
		result.ProviderName = api.SourceName()
	}

	rec := NewRecord(result, s.now(), ParseLocationSource(string(fix.Source)))

	s.logger.Info("weather",
		zap.String("provider", rec.ProviderName),
		zap.String("condition", string(rec.Condition)),
		zap.String("location_source", string(rec.LocationSource)),
		zap.Timep("sunrise", rec.Sunrise),
		zap.Timep("sunset", rec.Sunset))

	if s.sink == nil {
		return OutcomeEmitted
	}
	if err := s.sink.Send(ctx, rec); err != nil {
		s.logger.Warn("sink rejected weather record", zap.Error(err))
	}
	return OutcomeEmitted
}
