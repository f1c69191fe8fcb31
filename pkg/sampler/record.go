package sampler

import "fmt"

// Record is one emitted telemetry sample. Voltage is in volts; current and
// net current in milliamps; power in milliwatts; cumulative energy in
// milliwatt-hours. Timestamps are milliseconds since the session started.
type Record struct {
	TimestampMillis  uint64  `json:"timestamp_ms"`
	BusVoltage       float64 `json:"bus_voltage_v"`
	Current          float64 `json:"current_ma"`
	NetCurrent       float64 `json:"net_current_ma"`
	Power            float64 `json:"power_mw"`
	CumulativeEnergy float64 `json:"energy_mwh"`
}

// CSVHeader names the fields of CSV in emission order.
const CSVHeader = "timestamp_ms,bus_voltage_v,current_ma,net_current_ma,power_mw,energy_mwh"

// CSV renders the record as one comma-separated data line, fixed precision
// per field, no quoting.
func (r Record) CSV() string {
	return fmt.Sprintf("%d,%.6f,%.4f,%.4f,%.4f,%.6f",
		r.TimestampMillis, r.BusVoltage, r.Current, r.NetCurrent, r.Power, r.CumulativeEnergy)
}
