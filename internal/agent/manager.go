// Package agent ties the weather fetch cycle to the lifecycle driven by the
// hosting device framework.
package agent

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/local-weather/internal/scheduler"
	"github.com/i474232898/local-weather/internal/weather"
)

// Status is the connection state reported to the host.
type Status string

const (
	StatusReady         Status = "READY"
	StatusConnected     Status = "CONNECTED"
	StatusDisconnecting Status = "DISCONNECTING"
	StatusDisconnected  Status = "DISCONNECTED"
)

// DefaultSourceName is registered with the host when no provider is active.
const DefaultSourceName = "OpenWeatherMap"

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("agent closed")

// Host is the device framework hosting the agent.
type Host interface {
	UpdateStatus(Status)
	Register(name string)
}

// Monitor is a background component started and stopped with the agent.
type Monitor interface {
	Start() error
	Stop()
}

// IntervalObserver is told about every change of the query interval.
type IntervalObserver interface {
	SetQueryInterval(time.Duration)
}

type Option func(*Manager)

// WithMonitor starts m with the agent. A failing monitor does not fail Start.
func WithMonitor(m Monitor) Option {
	return func(mgr *Manager) { mgr.monitor = m }
}

// WithClosers registers resources released by Close, in order.
func WithClosers(c ...io.Closer) Option {
	return func(mgr *Manager) { mgr.closers = append(mgr.closers, c...) }
}

func WithIntervalObserver(o IntervalObserver) Option {
	return func(mgr *Manager) { mgr.intervals = o }
}

// Manager owns the scheduler running the weather service.
type Manager struct {
	host      Host
	service   *weather.Service
	scheduler *scheduler.Scheduler
	monitor   Monitor
	closers   []io.Closer
	intervals IntervalObserver
	logger    *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool

	// statusMu is separate from mu so a running cycle can report status
	// while Close waits for it.
	statusMu sync.Mutex
	status   Status
}

// New creates a Manager running service every interval once started. A
// non-positive interval selects scheduler.DefaultInterval.
func New(host Host, service *weather.Service, interval time.Duration, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		host:    host,
		service: service,
		logger:  logger.Named("agent"),
		status:  StatusReady,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.scheduler = scheduler.New("weather-query", interval, service.Run, logger)
	if m.intervals != nil {
		m.intervals.SetQueryInterval(m.scheduler.Interval())
	}
	return m
}

// Start registers the provider label with the host, starts connectivity
// monitoring and the periodic query. Calling it again is a no-op.
func (m *Manager) Start(acceptedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		return nil
	}
	m.setStatus(StatusReady)
	m.logger.Debug("starting", zap.Strings("accepted_ids", acceptedIDs))

	m.host.Register(m.sourceName())

	if m.monitor != nil {
		if err := m.monitor.Start(); err != nil {
			m.logger.Warn("connectivity monitor did not start", zap.Error(err))
		}
	}
	if err := m.scheduler.Start(); err != nil {
		return fmt.Errorf("start weather query: %w", err)
	}

	m.started = true
	m.setStatus(StatusConnected)
	return nil
}

// Close stops monitoring and the scheduler, waiting for a running cycle, and
// then releases resources. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.setStatus(StatusDisconnecting)

	if m.monitor != nil {
		m.monitor.Stop()
	}
	m.scheduler.Stop()

	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			m.logger.Warn("failed to release resource", zap.Error(err))
			errs = append(errs, err)
		}
	}

	m.setStatus(StatusDisconnected)
	return errors.Join(errs...)
}

// SetSource selects the weather provider used by subsequent cycles.
func (m *Manager) SetSource(providerID, apiKey string) error {
	return m.service.SetSource(providerID, apiKey)
}

// SetQueryInterval changes the period between cycles to interval units. It
// takes effect from the next cycle without restarting the scheduler.
func (m *Manager) SetQueryInterval(interval int64, unit time.Duration) error {
	if interval <= 0 || unit <= 0 {
		return fmt.Errorf("query interval must be positive, got %d x %s", interval, unit)
	}
	if interval > int64(math.MaxInt64/unit) {
		return fmt.Errorf("query interval %d x %s is out of range", interval, unit)
	}
	d := time.Duration(interval) * unit
	if err := m.scheduler.Reschedule(d); err != nil {
		return err
	}
	if m.intervals != nil {
		m.intervals.SetQueryInterval(d)
	}
	return nil
}

// QueryInterval returns the current period between cycles.
func (m *Manager) QueryInterval() time.Duration {
	return m.scheduler.Interval()
}

// Unavailable reports to the host that the agent cannot do its work, such
// as when the device has no positioning capability.
func (m *Manager) Unavailable() {
	m.setStatus(StatusDisconnected)
}

// Status returns the last status reported to the host.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

func (m *Manager) sourceName() string {
	if p := m.service.ActiveProvider(); p != nil {
		return p.SourceName()
	}
	return DefaultSourceName
}

func (m *Manager) setStatus(s Status) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status = s
	m.host.UpdateStatus(s)
}
