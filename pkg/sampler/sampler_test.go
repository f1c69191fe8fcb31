package sampler

import (
	"errors"
	"testing"
	"time"
)

type stubSensor struct {
	ready      []bool // consumed per SampleReady call; empty means always ready
	readyIdx   int
	voltage    float64
	current    float64
	currentErr error
}

func (s *stubSensor) Detect() error                  { return nil }
func (s *stubSensor) Configure(_, _ float64) error   { return nil }
func (s *stubSensor) IDs() (uint16, uint16, error)   { return 0x5449, 0x2260, nil }
func (s *stubSensor) BusVoltage() (float64, error)   { return s.voltage, nil }
func (s *stubSensor) ShuntCurrent() (float64, error) { return s.current, s.currentErr }
func (s *stubSensor) Close() error                   { return nil }
func (s *stubSensor) SampleReady() (bool, error) {
	if len(s.ready) == 0 {
		return true, nil
	}
	r := s.ready[s.readyIdx]
	if s.readyIdx < len(s.ready)-1 {
		s.readyIdx++
	}
	return r, nil
}

type captureSink struct {
	records []Record
	err     error
}

func (c *captureSink) Publish(r Record) error {
	c.records = append(c.records, r)
	return c.err
}

func TestFirstSampleDerivation(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	port := &stubSensor{voltage: 5.0, current: 100.0}
	sink := &captureSink{}
	s := NewSession(port, sink, 50*time.Millisecond, 0.968, 12.0, t0)

	rec, err := s.Tick(t0.Add(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record at the first full interval")
	}

	wantCurrent := 100.0 * 0.968
	if rec.Current != wantCurrent {
		t.Fatalf("current: got %v want %v", rec.Current, wantCurrent)
	}
	if rec.NetCurrent != wantCurrent-12.0 {
		t.Fatalf("net current: got %v want %v", rec.NetCurrent, wantCurrent-12.0)
	}
	if rec.Power != 5.0*wantCurrent {
		t.Fatalf("power: got %v want %v", rec.Power, 5.0*wantCurrent)
	}
	// first delta is measured from the session start
	wantEnergy := rec.Power * (50 * time.Millisecond).Hours()
	if rec.CumulativeEnergy != wantEnergy {
		t.Fatalf("energy: got %v want %v", rec.CumulativeEnergy, wantEnergy)
	}
	if rec.TimestampMillis != 50 {
		t.Fatalf("timestamp: got %d want 50", rec.TimestampMillis)
	}
	if s.SampleCount() != 1 {
		t.Fatalf("sample count: got %d want 1", s.SampleCount())
	}
}

func TestRateLimiterSkipsFastTicks(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	port := &stubSensor{voltage: 5.0, current: 100.0}
	sink := &captureSink{}
	s := NewSession(port, sink, 50*time.Millisecond, 1.0, 0, t0)

	for _, offset := range []time.Duration{10, 20, 49} {
		rec, err := s.Tick(t0.Add(offset * time.Millisecond))
		if err != nil {
			t.Fatalf("tick at +%dms: %v", offset, err)
		}
		if rec != nil {
			t.Fatalf("tick at +%dms emitted a record", offset)
		}
	}
	if len(sink.records) != 0 || s.SampleCount() != 0 || s.TotalEnergy() != 0 {
		t.Fatalf("fast ticks mutated state: records=%d count=%d energy=%v",
			len(sink.records), s.SampleCount(), s.TotalEnergy())
	}

	if rec, _ := s.Tick(t0.Add(50 * time.Millisecond)); rec == nil {
		t.Fatal("tick at the interval boundary should emit")
	}
	// 10ms after an emission is again too soon
	if rec, _ := s.Tick(t0.Add(60 * time.Millisecond)); rec != nil {
		t.Fatal("tick 10ms after emission should be a no-op")
	}
}

func TestNotReadyRetriesWithoutAdvancingClock(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	port := &stubSensor{voltage: 5.0, current: 100.0, ready: []bool{false, false, false, true}}
	sink := &captureSink{}
	s := NewSession(port, sink, 50*time.Millisecond, 1.0, 0, t0)

	for _, offset := range []time.Duration{50, 51, 52} {
		rec, err := s.Tick(t0.Add(offset * time.Millisecond))
		if err != nil {
			t.Fatalf("tick at +%dms: %v", offset, err)
		}
		if rec != nil {
			t.Fatalf("not-ready tick at +%dms emitted a record", offset)
		}
	}
	rec, err := s.Tick(t0.Add(53 * time.Millisecond))
	if err != nil {
		t.Fatalf("ready tick: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record once the sensor reported ready")
	}
	if rec.TimestampMillis != 53 {
		t.Fatalf("timestamp: got %d want 53 (the ready tick's time)", rec.TimestampMillis)
	}
	if len(sink.records) != 1 {
		t.Fatalf("records: got %d want exactly 1", len(sink.records))
	}

	// the rate-limit clock only advanced at +53ms
	if r, _ := s.Tick(t0.Add(90 * time.Millisecond)); r != nil {
		t.Fatal("tick at +90ms is within the interval of the +53ms emission")
	}
	if r, _ := s.Tick(t0.Add(103 * time.Millisecond)); r == nil {
		t.Fatal("tick at +103ms should emit")
	}
}

func TestReadErrorLeavesStateUntouched(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	port := &stubSensor{voltage: 5.0, current: 100.0, currentErr: errors.New("bus glitch")}
	sink := &captureSink{}
	s := NewSession(port, sink, 50*time.Millisecond, 1.0, 0, t0)

	rec, err := s.Tick(t0.Add(50 * time.Millisecond))
	if err == nil || rec != nil {
		t.Fatalf("expected read error and no record, got rec=%v err=%v", rec, err)
	}
	if s.SampleCount() != 0 || s.TotalEnergy() != 0 {
		t.Fatal("failed read mutated session state")
	}

	port.currentErr = nil
	rec, err = s.Tick(t0.Add(55 * time.Millisecond))
	if err != nil || rec == nil {
		t.Fatalf("retry after read error: rec=%v err=%v", rec, err)
	}
	if rec.TimestampMillis != 55 {
		t.Fatalf("timestamp: got %d want 55", rec.TimestampMillis)
	}
}

func TestEmissionSpacingAndMonotonicAccumulation(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	port := &stubSensor{voltage: 5.0, current: 120.0}
	sink := &captureSink{}
	s := NewSession(port, sink, 50*time.Millisecond, 0.968, 10.0, t0)

	// drive ticks every 7ms for ~7 seconds of virtual time
	for i := 1; i <= 1000; i++ {
		if _, err := s.Tick(t0.Add(time.Duration(i) * 7 * time.Millisecond)); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if len(sink.records) == 0 {
		t.Fatal("no records emitted")
	}
	for i := 1; i < len(sink.records); i++ {
		prev, cur := sink.records[i-1], sink.records[i]
		if cur.TimestampMillis-prev.TimestampMillis < 50 {
			t.Fatalf("records %d/%d spaced %dms apart", i-1, i, cur.TimestampMillis-prev.TimestampMillis)
		}
		if cur.CumulativeEnergy < prev.CumulativeEnergy {
			t.Fatalf("energy decreased between records %d and %d", i-1, i)
		}
	}
	if s.SampleCount() != uint64(len(sink.records)) {
		t.Fatalf("sample count %d != emitted records %d", s.SampleCount(), len(sink.records))
	}
}

func TestSinkErrorStillAdvancesClock(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	port := &stubSensor{voltage: 5.0, current: 100.0}
	sink := &captureSink{err: errors.New("sink down")}
	s := NewSession(port, sink, 50*time.Millisecond, 1.0, 0, t0)

	rec, err := s.Tick(t0.Add(50 * time.Millisecond))
	if err == nil {
		t.Fatal("expected the sink error to surface")
	}
	if rec == nil {
		t.Fatal("sample was taken; the record should be returned")
	}
	// the sample happened, so the rate limit keys off it
	if r, _ := s.Tick(t0.Add(60 * time.Millisecond)); r != nil {
		t.Fatal("tick 10ms after a failed publish should still be rate-limited")
	}
}

func TestIntegrateAccumulates(t *testing.T) {
	var total float64
	integrate(&total, 100.0, 0.5)
	if total != 50.0 {
		t.Fatalf("after first slice: got %v want 50", total)
	}
	integrate(&total, 100.0, 0.5)
	if total != 100.0 {
		t.Fatalf("after second slice: got %v want 100", total)
	}
	integrate(&total, 0, 1.0)
	if total != 100.0 {
		t.Fatalf("zero power changed total: %v", total)
	}
}
