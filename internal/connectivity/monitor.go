// Package connectivity tracks whether the network is reachable. The result
// is advisory; nothing is gated on it.
package connectivity

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/i474232898/local-weather/internal/scheduler"
)

// DefaultProbeURL answers 204 when the internet is reachable.
const DefaultProbeURL = "http://clients3.google.com/generate_204"

// Monitor periodically probes a URL. Any HTTP answer counts as connected;
// only transport failures count as disconnected.
type Monitor struct {
	client    *resty.Client
	url       string
	logger    *zap.Logger
	connected atomic.Bool
	sched     *scheduler.Scheduler
	onProbe   func(connected bool)
}

// NewMonitor creates a Monitor. It assumes connectivity until the first
// probe says otherwise.
func NewMonitor(url string, interval, timeout time.Duration, logger *zap.Logger) *Monitor {
	if url == "" {
		url = DefaultProbeURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		logger: logger.Named("connectivity"),
	}
	m.connected.Store(true)
	m.sched = scheduler.New("connectivity-probe", interval, m.Probe, logger)
	return m
}

// OnProbe registers fn to receive the result of every probe. It must be
// called before Start.
func (m *Monitor) OnProbe(fn func(connected bool)) {
	m.onProbe = fn
}

// Start begins periodic probing.
func (m *Monitor) Start() error {
	return m.sched.Start()
}

// Stop ends probing. The last state stays readable.
func (m *Monitor) Stop() {
	m.sched.Stop()
}

// Connected implements weather.ConnectivityChecker.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

// Probe runs one reachability check and records the result.
func (m *Monitor) Probe(ctx context.Context) {
	_, err := m.client.R().SetContext(ctx).Head(m.url)
	now := err == nil
	if m.onProbe != nil {
		m.onProbe(now)
	}
	if prev := m.connected.Swap(now); prev != now {
		if now {
			m.logger.Info("network connectivity restored")
		} else {
			m.logger.Warn("network connectivity lost", zap.Error(err))
		}
	}
}
