package sensor

// Sensor is the capability boundary to the current/voltage monitor. All
// electrical values use the device's native units: volts for bus voltage,
// milliamps for shunt current.
type Sensor interface {
	// Detect probes the identity registers and fails if the part does not
	// answer or is not the expected monitor.
	Detect() error
	// Configure programs the calibration and configuration registers for
	// the given full-scale current and shunt value. A readback-mismatch
	// error is a warning: the device keeps running with whatever it
	// accepted.
	Configure(maxCurrentAmps, shuntOhms float64) error
	IDs() (mfg, die uint16, err error)
	// SampleReady reports whether a new conversion result is available.
	SampleReady() (bool, error)
	BusVoltage() (float64, error)
	ShuntCurrent() (float64, error)
	Close() error
}
