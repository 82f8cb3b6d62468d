package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/plant-waterer/internal/config"
	"github.com/sweeney/plant-waterer/internal/discovery"
	"github.com/sweeney/plant-waterer/internal/hardware"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/mqtt"
	"github.com/sweeney/plant-waterer/internal/provision"
	"github.com/sweeney/plant-waterer/internal/radio"
	"github.com/sweeney/plant-waterer/internal/refresh"
	"github.com/sweeney/plant-waterer/internal/state"
	"github.com/sweeney/plant-waterer/internal/telemetry"
	"github.com/sweeney/plant-waterer/internal/watering"
	"github.com/sweeney/plant-waterer/internal/web"
)

// Shutdown reasons published with the SHUTDOWN event.
const (
	reasonSIGINT  = "SIGINT"
	reasonSIGTERM = "SIGTERM"
	reasonButton  = "BUTTON"
	reasonError   = "ERROR"
	reasonUnknown = "UNKNOWN"
)

func pinsFromConfig(cfg *config.Config) hardware.Pins {
	return hardware.Pins{
		Chip:       cfg.Pins.Chip,
		Pump:       cfg.Pins.Pump,
		WaterLevel: cfg.Pins.WaterLevel,
		LEDRed:     cfg.Pins.LEDRed,
		LEDGreen:   cfg.Pins.LEDGreen,
		LEDBlue:    cfg.Pins.LEDBlue,
		Button:     cfg.Pins.Button,
	}
}

func adcFromConfig(cfg *config.Config) hardware.ADC {
	return hardware.ADC{Bus: cfg.ADC.Bus, Address: uint16(cfg.ADC.Address), Channel: cfg.ADC.Channel}
}

func (a *app) runDaemon() error {
	cfg, log := a.cfg, a.log
	defer log.Sync()

	gw, err := hardware.NewRealGateway(pinsFromConfig(cfg), adcFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	// Close drives the pump line low, so every exit path below leaves the pump off.
	defer func() {
		if err := gw.Close(); err != nil {
			log.Error("close hardware", zap.Error(err))
		}
	}()

	store := state.NewStore(time.Now(), state.Defaults{
		Threshold:       cfg.Watering.Threshold,
		IntervalMinutes: cfg.Watering.Interval,
		LogCapacity:     cfg.Log.Capacity,
		Config: state.Config{
			WateringDuration: cfg.Watering.Duration,
			RefreshPeriod:    cfg.Refresh.Period,
			HeartbeatMs:      cfg.MQTT.Heartbeat.Milliseconds(),
			Broker:           cfg.MQTT.Broker,
			HTTPAddr:         cfg.HTTP.Addr,
			APSSID:           cfg.AP.SSID,
		},
	})
	lamp := hardware.NewLamp(gw, store, log.Named("lamp"))
	if err := gw.SetPump(false); err != nil {
		return fmt.Errorf("switch pump off: %w", err)
	}
	lamp.Show(logic.ColorGreen)

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, log.Named("mqtt"), store.SetMQTTConnected)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recorder telemetry.Recorder = telemetry.Nop{}
	influx := telemetry.InfluxConfig{URL: cfg.Influx.URL, Token: cfg.Influx.Token, Org: cfg.Influx.Org, Bucket: cfg.Influx.Bucket}
	if influx.Enabled() {
		rec, err := telemetry.NewInfluxRecorder(ctx, influx, log.Named("influx"))
		if err != nil {
			log.Warn("reading history disabled", zap.Error(err))
		} else {
			recorder = rec
		}
	}
	defer recorder.Close()

	rcfg := radio.DefaultConfig()
	rcfg.Settle = cfg.Radio.Settle
	rcfg.MaxQuiet = cfg.Radio.MaxQuiet
	rcfg.APTimeout = cfg.Radio.APTimeout
	rad := radio.New(radio.NewNMCLI(cfg.WiFi.Interface, radio.ExecRunner), rcfg, store, log.Named("radio"))

	pump := watering.NewPump(store, gw, publisher, log.Named("pump"))
	defer func() {
		if err := pump.ForceOff(); err != nil {
			log.Error("force pump off", zap.Error(err))
		}
	}()
	ctrl := watering.NewController(store, pump, cfg.Watering.Duration, log.Named("watering"), watering.WithIndicator(lamp))

	flow := provision.New(rad, store, provision.Config{
		APSSID:         cfg.AP.SSID,
		APPassword:     cfg.AP.Password,
		Station:        logic.Credentials{SSID: cfg.Station.SSID, Password: cfg.Station.Password},
		StationTimeout: cfg.Station.Timeout,
	}, log.Named("provision"))

	if cfg.MDNS.Enabled {
		port, err := discovery.PortFromAddr(cfg.HTTP.Addr)
		if err != nil {
			return err
		}
		adv := discovery.NewAdvertiser(cfg.MDNS.Instance, port, log.Named("mdns"))
		flow.OnConnected(func(ip string) {
			if err := adv.Advertise(ip); err != nil {
				log.Warn("mDNS advertisement failed", zap.Error(err))
			}
		})
		defer adv.Shutdown()
	}

	if err := flow.Establish(ctx); err != nil {
		lamp.Show(logic.ColorRed)
		return fmt.Errorf("establish connectivity: %w", err)
	}

	refresher := refresh.New(rad, gw, store, cfg.Refresh.Period, log.Named("refresh"), refresh.WithRecorder(recorder))
	srv := web.New(cfg.HTTP.Addr, store, ctrl, flow, lamp, log.Named("web"))

	publishSystem(publisher, store, mqtt.EventStartup, "", log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return flow.Run(gctx) })
	g.Go(func() error { return refresher.Run(gctx) })
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	log.Info("started",
		zap.String("http", cfg.HTTP.Addr),
		zap.Int("threshold", cfg.Watering.Threshold),
		zap.Int("interval_minutes", cfg.Watering.Interval),
		zap.Duration("watering", cfg.Watering.Duration),
		zap.String("broker", cfg.MQTT.Broker))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	button := make(chan struct{}, 1)
	gw.OnButton(func() {
		select {
		case button <- struct{}{}:
		default:
		}
	})

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		t := time.NewTicker(cfg.MQTT.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	reason := runLoop(gctx, publisher, mqttStatus, store, heartbeat, sigCh, button, log)
	cancel()
	err = g.Wait()

	if ferr := pump.ForceOff(); ferr != nil {
		log.Error("force pump off", zap.Error(ferr))
	}
	publishSystem(publisher, store, mqtt.EventShutdown, reason, log)
	log.Info("stopped", zap.String("reason", reason))

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runLoop publishes heartbeats until a signal, a button press or a task
// failure ends the process, and returns the shutdown reason.
func runLoop(ctx context.Context, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, store *state.Store, heartbeat <-chan time.Time, sig <-chan os.Signal, button <-chan struct{}, log *zap.Logger) string {
	for {
		select {
		case s := <-sig:
			log.Info("received signal, shutting down", zap.Stringer("signal", s))
			return signalName(s)

		case <-button:
			log.Info("reset button pressed, shutting down")
			return reasonButton

		case <-ctx.Done():
			log.Error("task failed, shutting down")
			return reasonError

		case <-heartbeat:
			if mqttStatus != nil {
				store.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := store.Snapshot()
			log.Info("heartbeat",
				zap.Duration("uptime", snap.Uptime().Truncate(time.Second)),
				zap.Int("moisture_percent", snap.MoisturePercent()),
				zap.Bool("pump_on", snap.PumpOn))
			publishSystem(publisher, store, mqtt.EventHeartbeat, "", log)
		}
	}
}

func publishSystem(publisher mqtt.Publisher, store *state.Store, event, reason string, log *zap.Logger) {
	snap := store.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != mqtt.EventHeartbeat,
		RawPayload: state.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.Warn("publish system event failed", zap.String("event", event), zap.Error(err))
		return
	}
	log.Debug("published system event", zap.String("event", event))
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return reasonSIGINT
	case syscall.SIGTERM:
		return reasonSIGTERM
	default:
		return reasonUnknown
	}
}
