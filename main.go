package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/victorjacobs/go-nilan/bridge"
	"github.com/victorjacobs/go-nilan/climate"
	"github.com/victorjacobs/go-nilan/config"
	"github.com/victorjacobs/go-nilan/logging"
	"github.com/victorjacobs/go-nilan/metrics"
	"github.com/victorjacobs/go-nilan/nilan"
	"github.com/victorjacobs/go-nilan/routes"
)

const sensorPollInterval = time.Minute

func main() {
	configPath := flag.String("config", "nilan.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfiguration(*configPath)
	if err != nil {
		logging.New(logging.InfoLevel).Fatalw("Error loading configuration", "err", err)
	}

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("Using Nilan unit", "port", cfg.SerialPort, "address", cfg.UnitAddress)
	nilanClient, err := nilan.NewClient(cfg.SerialPort, cfg.UnitAddress)
	if err != nil {
		log.Fatalw("Error setting up Nilan client", "err", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	var (
		b          *bridge.Bridge
		controller *climate.Controller
	)

	mqttOpts := cfg.Mqtt.ClientOptions(log.Named("mqtt"))
	// Configure MQTT subscriptions in the ConnectHandler to make sure they are set up after reconnect
	mqttOpts.SetOnConnectHandler(func(client mqtt.Client) {
		if err := b.Subscribe(controller); err != nil {
			log.Errorw("MQTT subscription failed", "err", err)
		}
	})
	mqttClient := mqtt.NewClient(mqttOpts)

	b = bridge.New(cfg, mqttClient, nilanClient, log)
	controller = climate.NewController(controllerConfig(cfg), nilanClient, log.Named("controller"),
		climate.WithObserver(collector),
		climate.WithReporter(b),
	)

	if t := mqttClient.Connect(); t.Wait() && t.Error() != nil {
		log.Fatalw("MQTT connection error", "err", t.Error())
	}

	if _, err := b.Describe(ctx); err != nil {
		log.Warnw("Could not identify Nilan unit", "err", err)
	}

	// Climate
	if err := b.RegisterClimate(); err != nil {
		log.Errorw("Registering climate entity failed", "err", err)
	}

	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		controller.Run(ctx)
	}()

	// Sensors
	if err := b.RegisterSensors(); err != nil {
		log.Errorw("Registering sensors failed", "err", err)
	}
	go loopSafely(ctx, log, sensorPollInterval, func(ctx context.Context) {
		if err := b.PollSensors(ctx); err != nil {
			log.Warnw("Polling sensors failed", "err", err)
		}
	})

	server := &http.Server{
		Addr:    cfg.HttpAddress,
		Handler: routes.NewRouter(controller, nilanClient, registry, log.Named("http")),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("HTTP server failed", "err", err)
		}
	}()

	<-ctx.Done()
	log.Infow("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server.Shutdown(shutdownCtx)
	<-controllerDone

	if t := mqttClient.Publish(cfg.Mqtt.AvailabilityTopic(), 0, true, "offline"); t.WaitTimeout(time.Second) && t.Error() != nil {
		log.Warnw("Publishing availability failed", "err", t.Error())
	}
	mqttClient.Disconnect(250)
}

func controllerConfig(cfg *config.Configuration) climate.Config {
	// Validated by config.Validate
	mode, _ := climate.ParseMode(cfg.Controller.InitialMode)

	return climate.Config{
		DefaultSetpoint: cfg.Controller.DefaultSetpoint,
		MinSetpoint:     cfg.Controller.MinSetpoint,
		MaxSetpoint:     cfg.Controller.MaxSetpoint,
		Hysteresis:      cfg.Controller.Hysteresis,
		MinDwell:        cfg.Controller.MinDwell,
		Staleness:       cfg.Controller.Staleness,
		Tick:            cfg.Controller.Tick,
		QueueSize:       cfg.Controller.QueueSize,
		InitialMode:     mode,
		FanStep:         cfg.Controller.FanStep,
		HistorySize:     cfg.Controller.HistorySize,
		Dispatcher: climate.DispatcherConfig{
			MaxAttempts:    cfg.Dispatcher.MaxAttempts,
			Backoff:        cfg.Dispatcher.Backoff,
			MaxBackoff:     cfg.Dispatcher.MaxBackoff,
			CommandTimeout: cfg.Dispatcher.CommandTimeout,
		},
	}
}
