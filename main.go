package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericogr/ina226-power-logger/pkg/calibration"
	"github.com/ericogr/ina226-power-logger/pkg/config"
	"github.com/ericogr/ina226-power-logger/pkg/output"
	"github.com/ericogr/ina226-power-logger/pkg/output/console"
	"github.com/ericogr/ina226-power-logger/pkg/output/mqtt"
	"github.com/ericogr/ina226-power-logger/pkg/output/serialport"
	"github.com/ericogr/ina226-power-logger/pkg/sampler"
	"github.com/ericogr/ina226-power-logger/pkg/sensor"
)

const (
	version = "1.0.0"

	// how often the not-detected diagnostic repeats
	detectRetryInterval = 5 * time.Second
	// tick cadence; must be well under the transmission interval so a
	// not-ready sensor gets retried promptly
	tickPeriod = 5 * time.Millisecond
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg.Verbose)

	outs, err := initOutputs(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize outputs")
	}
	sink := output.NewMulti(outs...)
	defer sink.Close()

	port, err := newSensor(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sensor")
	}
	defer port.Close()

	if err := port.Detect(); err != nil {
		reportDetectFailure(sink, err) // never returns
	}

	if err := port.Configure(cfg.MaxCurrentAmps, cfg.ShuntOhms); err != nil {
		// best effort: the device keeps whatever configuration it took
		log.Warn().Err(err).Msg("sensor configuration not verified")
		sink.Comment(fmt.Sprintf("WARNING: %v", err))
	}

	log.Info().Int("window_ms", cfg.CalibrationMs).Msg("measuring baseline")
	base := calibration.MeasureBaseline(port, cfg.CorrectionFactor,
		time.Duration(cfg.CalibrationMs)*time.Millisecond)

	writePreamble(sink, cfg, port, base)

	session := sampler.NewSession(port, sink, time.Duration(cfg.IntervalMs)*time.Millisecond,
		cfg.CorrectionFactor, base.CurrentMilliamps, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	run(ctx, session)

	log.Info().
		Uint64("samples", session.SampleCount()).
		Float64("energy_mwh", session.TotalEnergy()).
		Msg("session finished")
}

// run drives the cooperative scheduler until the context is canceled. Each
// tick either no-ops or completes one full sample; it never blocks.
func run(ctx context.Context, session *sampler.Session) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := session.Tick(now); err != nil {
				log.Debug().Err(err).Msg("tick skipped")
			}
		}
	}
}

// reportDetectFailure is the sole unrecoverable state: the sensor never
// acknowledged, so the stream carries a diagnostic comment forever and never
// reaches DATA_START.
func reportDetectFailure(sink output.Output, err error) {
	log.Error().Err(err).Msg("sensor not detected")
	for {
		sink.Comment(fmt.Sprintf("ERROR: INA226 not detected: %v", err))
		time.Sleep(detectRetryInterval)
	}
}

func writePreamble(sink output.Output, cfg config.Config, port sensor.Sensor, base calibration.Baseline) {
	for _, line := range preambleLines(cfg, port, base) {
		sink.Comment(line)
	}
}

// preambleLines assembles the comment header emitted before data mode. The
// last line is always the DATA_START sentinel.
func preambleLines(cfg config.Config, port sensor.Sensor, base calibration.Baseline) []string {
	lines := []string{
		fmt.Sprintf("ina226-power-logger v%s", version),
		fmt.Sprintf("shunt_ohms=%.3f max_current_a=%.3f correction_factor=%.4f", cfg.ShuntOhms, cfg.MaxCurrentAmps, cfg.CorrectionFactor),
		fmt.Sprintf("current_lsb_ma=%.6f power_lsb_mw=%.6f",
			sensor.CurrentLSB(cfg.MaxCurrentAmps)*1000.0, sensor.PowerLSB(cfg.MaxCurrentAmps)*1000.0),
		fmt.Sprintf("baseline_ma=%.4f baseline_samples=%d", base.CurrentMilliamps, base.Samples),
	}
	if mfg, die, err := port.IDs(); err == nil {
		lines = append(lines, fmt.Sprintf("device mfg_id=0x%04X die_id=0x%04X", mfg, die))
	}
	lines = append(lines,
		fmt.Sprintf("columns: %s", sampler.CSVHeader),
		"DATA_START",
	)
	return lines
}

func newSensor(cfg config.Config) (sensor.Sensor, error) {
	if cfg.SensorType == "simulation" {
		return sensor.NewFake(), nil
	}
	return sensor.NewINA226(cfg.I2CBus, cfg.I2CAddress)
}

func initOutputs(cfg config.Config) ([]output.Output, error) {
	outs := make([]output.Output, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "console":
			outs = append(outs, console.New())
		case "serial":
			if oc.Serial == nil {
				return nil, fmt.Errorf("serial output requires serial settings")
			}
			s, err := serialport.New(*oc.Serial)
			if err != nil {
				return nil, err
			}
			outs = append(outs, s)
		case "mqtt":
			if oc.MQTT == nil {
				return nil, fmt.Errorf("mqtt output requires mqtt settings")
			}
			m, err := mqtt.New(*oc.MQTT)
			if err != nil {
				return nil, err
			}
			outs = append(outs, m)
		default:
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
	}
	if len(outs) == 0 {
		outs = append(outs, console.New())
	}
	return outs, nil
}

func initLogging(verbose bool) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(level)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info().Msg("received termination signal")
	cancel()
}
