package sensor

import (
	"math/rand"
	"sync"
)

// Fake simulates an INA226 carrying a small DC load, for running the logger
// without hardware. Readings get a little noise so the output stream is not
// perfectly flat.
type Fake struct {
	mu          sync.Mutex
	busVoltage  float64
	baseCurrent float64 // milliamps
	noise       float64 // milliamps, peak
}

func NewFake() Sensor {
	return &Fake{busVoltage: 5.0, baseCurrent: 90.0, noise: 8.0}
}

func (f *Fake) Detect() error { return nil }

func (f *Fake) Configure(maxCurrentAmps, shuntOhms float64) error { return nil }

func (f *Fake) IDs() (uint16, uint16, error) { return mfgIDTI, dieIDINA226, nil }

func (f *Fake) SampleReady() (bool, error) { return true, nil }

func (f *Fake) BusVoltage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busVoltage + (rand.Float64()-0.5)*0.01, nil
}

func (f *Fake) ShuntCurrent() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseCurrent + (rand.Float64()-0.5)*f.noise, nil
}

func (f *Fake) Close() error { return nil }
