package agent

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/i474232898/local-weather/internal/location"
	"github.com/i474232898/local-weather/internal/metrics"
	"github.com/i474232898/local-weather/internal/sink"
	"github.com/i474232898/local-weather/internal/weather"
)

type fakeHost struct {
	mu         sync.Mutex
	statuses   []Status
	registered []string
}

func (h *fakeHost) UpdateStatus(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, s)
}

func (h *fakeHost) Register(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered = append(h.registered, name)
}

func (h *fakeHost) snapshot() ([]Status, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.statuses...), append([]string(nil), h.registered...)
}

type fixedResolver struct{}

func (fixedResolver) LastKnownLocation(context.Context) (weather.Fix, bool) {
	return weather.Fix{
		Coordinates: weather.Coordinates{Latitude: 52.08, Longitude: 4.31},
		Source:      weather.LocationGPS,
	}, true
}

type stubProvider struct {
	id    weather.ProviderID
	calls atomic.Int32
}

func (p *stubProvider) ID() weather.ProviderID { return p.id }

func (p *stubProvider) SourceName() string {
	if p.id == weather.ProviderWeatherAPI {
		return "WeatherAPI"
	}
	return "OpenWeatherMap"
}

func (p *stubProvider) LoadCurrentWeather(context.Context, float64, float64) (weather.Result, error) {
	p.calls.Inc()
	return weather.Result{
		ProviderName: p.SourceName(),
		ObservedAt:   time.Now(),
		Temperature:  weather.Float(10.5),
		Condition:    weather.ConditionClear,
	}, nil
}

func stubFactory(cfg weather.ProviderConfig) (weather.Provider, error) {
	return &stubProvider{id: cfg.ProviderID}, nil
}

type fakeMonitor struct {
	started, stopped atomic.Bool
	err              error
}

func (m *fakeMonitor) Start() error {
	m.started.Store(true)
	return m.err
}

func (m *fakeMonitor) Stop() { m.stopped.Store(true) }

type fakeCloser struct {
	closed atomic.Int32
	err    error
}

func (c *fakeCloser) Close() error {
	c.closed.Inc()
	return c.err
}

func newService(t *testing.T, mem *sink.MemorySink) *weather.Service {
	t.Helper()
	svc := weather.NewService(fixedResolver{}, mem, stubFactory, zap.NewNop())
	require.NoError(t, svc.SetSource("openweathermap", "key"))
	return svc
}

func TestManager_Lifecycle(t *testing.T) {
	host := &fakeHost{}
	mem := sink.NewMemorySink(10)
	mon := &fakeMonitor{}
	closer := &fakeCloser{}

	m := New(host, newService(t, mem), time.Hour, zap.NewNop(), WithMonitor(mon), WithClosers(closer))
	assert.Equal(t, StatusReady, m.Status())

	require.NoError(t, m.Start([]string{"source-1"}))
	assert.Equal(t, StatusConnected, m.Status())
	assert.True(t, mon.started.Load())

	// The first cycle runs as soon as the scheduler starts.
	require.Eventually(t, func() bool { return mem.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	rec, err := mem.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OpenWeatherMap", rec.ProviderName)
	assert.Equal(t, weather.LocationGPS, rec.LocationSource)

	require.NoError(t, m.Close())
	assert.True(t, mon.stopped.Load())
	assert.Equal(t, int32(1), closer.closed.Load())
	assert.Equal(t, StatusDisconnected, m.Status())

	statuses, registered := host.snapshot()
	assert.Equal(t, []Status{StatusReady, StatusConnected, StatusDisconnecting, StatusDisconnected}, statuses)
	assert.Equal(t, []string{"OpenWeatherMap"}, registered)

	require.NoError(t, m.Close())
	assert.Equal(t, int32(1), closer.closed.Load())
	assert.ErrorIs(t, m.Start(nil), ErrClosed)
}

func TestManager_StartIsIdempotent(t *testing.T) {
	host := &fakeHost{}
	m := New(host, newService(t, sink.NewMemorySink(1)), time.Hour, zap.NewNop())
	defer m.Close()

	require.NoError(t, m.Start(nil))
	require.NoError(t, m.Start(nil))

	_, registered := host.snapshot()
	assert.Len(t, registered, 1)
}

func TestManager_RegistersActiveProviderName(t *testing.T) {
	host := &fakeHost{}
	svc := newService(t, sink.NewMemorySink(1))
	m := New(host, svc, time.Hour, zap.NewNop())
	defer m.Close()

	require.NoError(t, m.SetSource("weatherapi", "key"))
	assert.ErrorIs(t, m.SetSource("darksky", "key"), weather.ErrUnrecognizedProvider)
	require.NoError(t, m.Start(nil))

	_, registered := host.snapshot()
	assert.Equal(t, []string{"WeatherAPI"}, registered)
}

func TestManager_DefaultLabelWithoutProvider(t *testing.T) {
	host := &fakeHost{}
	svc := weather.NewService(fixedResolver{}, sink.NewMemorySink(1), stubFactory, zap.NewNop())
	m := New(host, svc, time.Hour, zap.NewNop())
	defer m.Close()

	require.NoError(t, m.Start(nil))
	_, registered := host.snapshot()
	assert.Equal(t, []string{DefaultSourceName}, registered)
}

func TestManager_MonitorFailureDoesNotBlockStart(t *testing.T) {
	m := New(&fakeHost{}, newService(t, sink.NewMemorySink(1)), time.Hour, zap.NewNop(),
		WithMonitor(&fakeMonitor{err: errors.New("no route")}))
	defer m.Close()

	require.NoError(t, m.Start(nil))
	assert.Equal(t, StatusConnected, m.Status())
}

func TestManager_CloseReportsCloserErrors(t *testing.T) {
	failing := &fakeCloser{err: errors.New("flush failed")}
	ok := &fakeCloser{}
	m := New(&fakeHost{}, newService(t, sink.NewMemorySink(1)), time.Hour, zap.NewNop(), WithClosers(failing, ok))

	err := m.Close()
	assert.ErrorContains(t, err, "flush failed")
	assert.Equal(t, int32(1), ok.closed.Load())
	assert.Equal(t, StatusDisconnected, m.Status())
}

func TestManager_RescheduleShortensPeriod(t *testing.T) {
	mem := sink.NewMemorySink(0)
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	m := New(&fakeHost{}, newService(t, mem), 10*time.Minute, zap.NewNop(), WithIntervalObserver(collector))
	defer m.Close()
	assert.Equal(t, 600.0, testutil.ToFloat64(collector.QueryInterval))

	require.NoError(t, m.Start(nil))
	require.Eventually(t, func() bool { return mem.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// With the old period the next run would be ten minutes away.
	require.NoError(t, m.SetQueryInterval(60, time.Millisecond))
	assert.Equal(t, 60*time.Millisecond, m.QueryInterval())
	assert.Equal(t, 0.06, testutil.ToFloat64(collector.QueryInterval))
	assert.Eventually(t, func() bool { return mem.Len() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_SetQueryIntervalRejectsNonPositive(t *testing.T) {
	m := New(&fakeHost{}, newService(t, sink.NewMemorySink(1)), time.Hour, zap.NewNop())
	defer m.Close()

	assert.Error(t, m.SetQueryInterval(0, time.Second))
	assert.Error(t, m.SetQueryInterval(-5, time.Minute))
	assert.Equal(t, time.Hour, m.QueryInterval())
}

func TestManager_SetQueryIntervalRejectsOverflow(t *testing.T) {
	m := New(&fakeHost{}, newService(t, sink.NewMemorySink(1)), time.Hour, zap.NewNop())
	defer m.Close()
	require.NoError(t, m.Start(nil))

	// 18446744074s does not fit in a time.Duration and would wrap to ~290ms.
	assert.Error(t, m.SetQueryInterval(18446744074, time.Second))
	assert.Error(t, m.SetQueryInterval(math.MaxInt64, time.Nanosecond*2))
	assert.Equal(t, time.Hour, m.QueryInterval())

	require.NoError(t, m.SetQueryInterval(365*24*3600, time.Second))
	assert.Equal(t, 365*24*time.Hour, m.QueryInterval())
}

type flakyProvider struct {
	stubProvider
	failing atomic.Bool
}

func (p *flakyProvider) LoadCurrentWeather(ctx context.Context, lat, lon float64) (weather.Result, error) {
	if p.failing.Load() {
		p.calls.Inc()
		return weather.Result{}, &weather.TransportError{
			Provider:  p.SourceName(),
			Latitude:  lat,
			Longitude: lon,
			Err:       errors.New("connection reset"),
		}
	}
	return p.stubProvider.LoadCurrentWeather(ctx, lat, lon)
}

func TestManager_TransportErrorDoesNotStopSchedule(t *testing.T) {
	mem := sink.NewMemorySink(0)
	provider := &flakyProvider{stubProvider: stubProvider{id: weather.ProviderOpenWeatherMap}}
	provider.failing.Store(true)
	factory := func(weather.ProviderConfig) (weather.Provider, error) { return provider, nil }

	svc := weather.NewService(fixedResolver{}, mem, factory, zap.NewNop())
	require.NoError(t, svc.SetSource("openweathermap", "key"))
	m := New(&fakeHost{}, svc, 10*time.Minute, zap.NewNop())
	defer m.Close()

	require.NoError(t, m.Start(nil))
	require.Eventually(t, func() bool { return provider.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, mem.Len())

	provider.failing.Store(false)
	require.NoError(t, m.SetQueryInterval(50, time.Millisecond))

	assert.Eventually(t, func() bool { return mem.Len() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StatusConnected, m.Status())
}

func TestManager_MissingPositioningReportsDisconnected(t *testing.T) {
	host := &fakeHost{}
	resolver := location.NewResolver(location.Permissions{Fine: true, Coarse: true}, zap.NewNop())
	mem := sink.NewMemorySink(1)
	svc := weather.NewService(resolver, mem, stubFactory, zap.NewNop())
	require.NoError(t, svc.SetSource("openweathermap", ""))

	m := New(host, svc, time.Hour, zap.NewNop())
	defer m.Close()
	resolver.OnMissingCapability(m.Unavailable)

	require.NoError(t, m.Start(nil))
	assert.Equal(t, weather.OutcomeNoLocation, svc.RunCycle(context.Background()))
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Zero(t, mem.Len())
}

func TestLogHost(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewLogHost(zap.New(core))

	h.Register("OpenWeatherMap")
	h.UpdateStatus(StatusConnected)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "OpenWeatherMap", logs.All()[0].ContextMap()["name"])
	assert.Equal(t, "CONNECTED", logs.All()[1].ContextMap()["status"])
}
