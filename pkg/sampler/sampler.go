// Package sampler holds the steady-state measurement loop: a rate-limited
// scheduler pulling readings from the sensor, an incremental energy
// integrator, and the per-session mutable state both share.
package sampler

import (
	"math"
	"time"

	"github.com/ericogr/ina226-power-logger/pkg/sensor"
)

// Sink receives each assembled record. Satisfied by pkg/output sinks.
type Sink interface {
	Publish(Record) error
}

// Session owns all mutable state of one sampling run. It is built once the
// baseline is known and is only ever driven from a single goroutine, so no
// locking is needed.
type Session struct {
	port       sensor.Sensor
	sink       Sink
	interval   time.Duration
	correction float64
	baseline   float64 // milliamps

	start  time.Time
	lastTx time.Time
	count  uint64
	total  float64 // milliwatt-hours
}

func NewSession(port sensor.Sensor, sink Sink, interval time.Duration, correction, baselineMilliamps float64, start time.Time) *Session {
	return &Session{
		port:       port,
		sink:       sink,
		interval:   interval,
		correction: correction,
		baseline:   baselineMilliamps,
		start:      start,
		lastTx:     start,
	}
}

// Tick runs one cooperative scheduling pass and never blocks. Ticks arriving
// before the transmission interval has elapsed are no-ops. A sensor that is
// not conversion-ready (or fails a read) leaves all state untouched,
// including the rate-limit timestamp, so the next tick retries immediately
// instead of waiting out another full period.
//
// The integration delta is the actual elapsed time since the previous
// emitted sample, not the nominal period, so energy stays honest under
// scheduler jitter.
func (s *Session) Tick(now time.Time) (*Record, error) {
	elapsed := now.Sub(s.lastTx)
	if elapsed < s.interval {
		return nil, nil
	}
	ready, err := s.port.SampleReady()
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, nil
	}
	voltage, err := s.port.BusVoltage()
	if err != nil {
		return nil, err
	}
	raw, err := s.port.ShuntCurrent()
	if err != nil {
		return nil, err
	}

	current := math.Abs(raw) * s.correction
	net := current - s.baseline
	power := voltage * current // V * mA = mW

	integrate(&s.total, power, elapsed.Hours())
	s.count++

	rec := Record{
		TimestampMillis:  uint64(now.Sub(s.start).Milliseconds()),
		BusVoltage:       voltage,
		Current:          current,
		NetCurrent:       net,
		Power:            power,
		CumulativeEnergy: s.total,
	}
	err = s.sink.Publish(rec)
	s.lastTx = now
	return &rec, err
}

// SampleCount reports how many records have been emitted so far.
func (s *Session) SampleCount() uint64 { return s.count }

// TotalEnergy reports the accumulated energy in milliwatt-hours.
func (s *Session) TotalEnergy() float64 { return s.total }

// integrate adds one rectangular slice of power history to the running
// total: power in milliwatts, dt in hours, total in milliwatt-hours. The sum
// is never reset, so floating-point drift grows with session length; that is
// an accepted property of the format, not something to correct here.
func integrate(total *float64, powerMilliwatts, deltaHours float64) {
	*total += powerMilliwatts * deltaHours
}
