package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/i474232898/local-weather/internal/agent"
	httpapi "github.com/i474232898/local-weather/internal/api/http"
	"github.com/i474232898/local-weather/internal/config"
	"github.com/i474232898/local-weather/internal/connectivity"
	"github.com/i474232898/local-weather/internal/location"
	applog "github.com/i474232898/local-weather/internal/log"
	"github.com/i474232898/local-weather/internal/metrics"
	"github.com/i474232898/local-weather/internal/sink"
	"github.com/i474232898/local-weather/internal/weather"
	"github.com/i474232898/local-weather/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := applog.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("local-weather stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	// Shared HTTP client for outbound provider calls.
	httpClient := providers.NewHTTPClient(cfg.HTTPTimeout, cfg.HTTPMaxIdle)

	var (
		mqttClient mqtt.Client
		gps        *location.GPSSource
	)
	if cfg.GPSEnabled || cfg.HasSink("mqtt") {
		// Subscriptions are renewed on every (re)connect.
		mqttClient = newMQTTClient(cfg, log, func() {
			if gps == nil {
				return
			}
			if err := gps.Subscribe(); err != nil {
				log.Warn("gps fixes unavailable", zap.Error(err))
			}
		})
	}

	// The memory sink always runs; it backs the history endpoint, and the
	// latest-weather endpoint unless records are persisted to postgres.
	mem := sink.NewMemorySink(cfg.MemoryHistory)
	sinks, db, err := buildSinks(cfg, mem, mqttClient)
	if err != nil {
		return err
	}
	var latest httpapi.LatestReader = mem
	if db != nil {
		latest = db
	}

	sources, closers := buildLocationSources(cfg, mqttClient, log)
	for _, src := range sources {
		if g, ok := src.(*location.GPSSource); ok {
			gps = g
		}
	}
	if mqttClient != nil {
		connectMQTT(mqttClient, cfg, log)
	}
	resolver := location.NewResolver(location.Permissions{
		Fine:   cfg.PermissionFine,
		Coarse: cfg.PermissionCoarse,
	}, log, sources...)

	monitor := connectivity.NewMonitor(cfg.ProbeURL, cfg.ProbeInterval, cfg.HTTPTimeout, log)
	monitor.OnProbe(collector.SetConnected)

	service := weather.NewService(resolver, sinks, providers.Factory(httpClient), log,
		weather.WithConnectivity(monitor),
		weather.WithObserver(collector))
	// An unrecognized source is logged; it can be corrected over the API.
	_ = service.SetSource(cfg.WeatherSource, cfg.WeatherAPIKey)

	closers = append(closers, sinks)
	if mqttClient != nil {
		closers = append(closers, mqttCloser{mqttClient})
	}
	mgr := agent.New(agent.NewLogHost(log), service, cfg.QueryInterval, log,
		agent.WithMonitor(monitor),
		agent.WithClosers(closers...),
		agent.WithIntervalObserver(collector))
	resolver.OnMissingCapability(mgr.Unavailable)

	if err := mgr.Start([]string{cfg.SourceID}); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn("agent closed with errors", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:               "local-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, mgr, latest, mem, reg)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", zap.Error(err))
		}
	}()
	log.Info("local-weather started",
		zap.String("port", cfg.Port),
		zap.String("source_id", cfg.SourceID),
		zap.Duration("interval", mgr.QueryInterval()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
	return nil
}

// buildSinks returns every enabled sink, and the SQL sink on its own when
// postgres is enabled.
func buildSinks(cfg *config.AppConfig, mem *sink.MemorySink, mqttClient mqtt.Client) (sink.Multi, *sink.GormSink, error) {
	sinks := sink.Multi{mem}
	key := cfg.ObservationKey()
	var db *sink.GormSink

	if cfg.HasSink("kafka") {
		k, err := sink.NewKafkaSink(sink.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), key)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, k)
	}
	if cfg.HasSink("mqtt") {
		sinks = append(sinks, sink.NewMQTTSink(mqttClient, cfg.MQTTWeatherTopic, cfg.HTTPTimeout))
	}
	if cfg.HasSink("postgres") {
		conn, err := sink.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		db, err = sink.NewGormSink(conn, key)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, db)
	}
	return sinks, db, nil
}

// buildLocationSources returns the enabled positioning sources and those of
// them that must be closed on shutdown.
func buildLocationSources(cfg *config.AppConfig, mqttClient mqtt.Client, log *zap.Logger) ([]location.Source, []io.Closer) {
	var (
		sources []location.Source
		closers []io.Closer
	)

	if cfg.GPSEnabled {
		gps := location.NewGPSSource(mqttClient, cfg.GPSTopic, log)
		sources = append(sources, gps)
		closers = append(closers, gps)
	}
	if cfg.NetworkEnabled {
		sources = append(sources, location.NewNetworkSource(cfg.NetworkURL, cfg.HTTPTimeout))
	}
	switch {
	case cfg.StaticLatitude != nil:
		sources = append(sources, location.NewStaticSource(*cfg.StaticLatitude, *cfg.StaticLongitude))
	case cfg.StaticCity != "":
		sources = append(sources, location.NewGeocodedSource(cfg.GeocoderAPIKey, cfg.StaticCity, cfg.StaticCountry))
	}
	return sources, closers
}

func newMQTTClient(cfg *config.AppConfig, log *zap.Logger, onConnect func()) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("mqtt connected", zap.String("broker", cfg.MQTTBroker))
			onConnect()
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})
	return mqtt.NewClient(opts)
}

// connectMQTT does not fail startup; the client keeps retrying in the
// background.
func connectMQTT(c mqtt.Client, cfg *config.AppConfig, log *zap.Logger) {
	token := c.Connect()
	if !token.WaitTimeout(cfg.HTTPTimeout) {
		log.Warn("mqtt broker not reachable yet, retrying in background", zap.String("broker", cfg.MQTTBroker))
	} else if err := token.Error(); err != nil {
		log.Warn("mqtt connect failed", zap.String("broker", cfg.MQTTBroker), zap.Error(err))
	}
}

type mqttCloser struct{ c mqtt.Client }

func (m mqttCloser) Close() error {
	m.c.Disconnect(250)
	return nil
}
