// Package calibration measures the idle-current baseline before sampling
// starts. This is the only place the logger is allowed to block, and only
// for a fixed wall-clock window.
package calibration

import (
	"math"
	"time"

	"github.com/ericogr/ina226-power-logger/pkg/sensor"
)

// Baseline is the average idle current, already corrected and rectified.
type Baseline struct {
	CurrentMilliamps float64
	Samples          int
}

const pollPause = time.Millisecond

// MeasureBaseline polls the sensor until the window's deadline and averages
// every ready reading as abs(mA) * correctionFactor. A window with zero
// ready samples yields a zero baseline rather than an error, so a stalled
// sensor cannot hang startup; the session then runs uncalibrated.
func MeasureBaseline(port sensor.Sensor, correctionFactor float64, window time.Duration) Baseline {
	deadline := time.Now().Add(window)
	var sum float64
	var n int
	for time.Now().Before(deadline) {
		ready, err := port.SampleReady()
		if err != nil || !ready {
			time.Sleep(pollPause)
			continue
		}
		raw, err := port.ShuntCurrent()
		if err != nil {
			time.Sleep(pollPause)
			continue
		}
		sum += math.Abs(raw) * correctionFactor
		n++
	}
	if n == 0 {
		return Baseline{}
	}
	return Baseline{CurrentMilliamps: sum / float64(n), Samples: n}
}
