package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	regConfig      = 0x00
	regShuntVolt   = 0x01
	regBusVoltage  = 0x02
	regPower       = 0x03
	regCurrent     = 0x04
	regCalibration = 0x05
	regMaskEnable  = 0x06
	regMfgID       = 0xFE
	regDieID       = 0xFF

	mfgIDTI     = 0x5449 // "TI"
	dieIDINA226 = 0x2260

	// AVG=16, 1.1ms bus and shunt conversion times, continuous shunt+bus
	configContinuous = 0x4527

	// CVRF bit in the mask/enable register
	maskConversionReady = 0x0008

	busVoltageLSB = 1.25e-3 // volts per bit
)

type INA226 struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	currentLSB float64 // amps per bit, set by Configure
}

func NewINA226(busName string, addr int) (Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(addr), Bus: bus}
	return &INA226{dev: dev, bus: bus}, nil
}

func (s *INA226) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *INA226) Detect() error {
	mfg, die, err := s.IDs()
	if err != nil {
		return err
	}
	if mfg != mfgIDTI || die != dieIDINA226 {
		return fmt.Errorf("unexpected device identity mfg=0x%04X die=0x%04X (want 0x%04X/0x%04X)",
			mfg, die, mfgIDTI, dieIDINA226)
	}
	return nil
}

func (s *INA226) IDs() (uint16, uint16, error) {
	mfg, err := s.readReg(regMfgID)
	if err != nil {
		return 0, 0, err
	}
	die, err := s.readReg(regDieID)
	if err != nil {
		return 0, 0, err
	}
	return mfg, die, nil
}

// Configure writes the calibration word for the requested full-scale current
// and switches the device to continuous shunt+bus conversion. The config
// register is read back; a mismatch is reported but the device is left
// running as-is.
func (s *INA226) Configure(maxCurrentAmps, shuntOhms float64) error {
	s.currentLSB = CurrentLSB(maxCurrentAmps)
	if err := s.writeReg(regCalibration, CalibrationWord(maxCurrentAmps, shuntOhms)); err != nil {
		return err
	}
	if err := s.writeReg(regConfig, configContinuous); err != nil {
		return err
	}
	got, err := s.readReg(regConfig)
	if err != nil {
		return err
	}
	if got != configContinuous {
		return fmt.Errorf("config readback mismatch: wrote 0x%04X, read 0x%04X", configContinuous, got)
	}
	return nil
}

// SampleReady reads the mask/enable register and decodes the CVRF flag. The
// read also clears the flag, so one conversion answers ready exactly once.
func (s *INA226) SampleReady() (bool, error) {
	v, err := s.readReg(regMaskEnable)
	if err != nil {
		return false, err
	}
	return v&maskConversionReady != 0, nil
}

func (s *INA226) BusVoltage() (float64, error) {
	raw, err := s.readReg(regBusVoltage)
	if err != nil {
		return 0, err
	}
	return float64(raw) * busVoltageLSB, nil
}

// ShuntCurrent returns the calibrated current register reading in milliamps.
// The register is signed; the sign is preserved here and rectified by the
// caller.
func (s *INA226) ShuntCurrent() (float64, error) {
	raw, err := s.readReg(regCurrent)
	if err != nil {
		return 0, err
	}
	return float64(int16(raw)) * s.currentLSB * 1000.0, nil
}

func (s *INA226) readReg(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := s.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, fmt.Errorf("read reg 0x%02X: %w", reg, err)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func (s *INA226) writeReg(reg byte, value uint16) error {
	if err := s.dev.Tx([]byte{reg, byte(value >> 8), byte(value)}, nil); err != nil {
		return fmt.Errorf("write reg 0x%02X: %w", reg, err)
	}
	return nil
}

// CurrentLSB is the current register scale in amps per bit for a full-scale
// current. The INA226 divides the full range over 2^15 counts.
func CurrentLSB(maxCurrentAmps float64) float64 {
	return maxCurrentAmps / 32768.0
}

// PowerLSB is the power register scale in watts per bit. The device fixes it
// at 25x the current LSB.
func PowerLSB(maxCurrentAmps float64) float64 {
	return 25.0 * CurrentLSB(maxCurrentAmps)
}

// CalibrationWord computes the CALIBRATION register value per the datasheet
// (cal = 0.00512 / (currentLSB * shunt)), truncated to the register width.
func CalibrationWord(maxCurrentAmps, shuntOhms float64) uint16 {
	return uint16(0.00512 / (CurrentLSB(maxCurrentAmps) * shuntOhms))
}
