package serialport

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"

	"github.com/ericogr/ina226-power-logger/pkg/config"
	"github.com/ericogr/ina226-power-logger/pkg/output"
	"github.com/ericogr/ina226-power-logger/pkg/sampler"
)

// SerialOutput writes the same text protocol as the console sink to a serial
// device, CRLF-terminated (8N1).
type SerialOutput struct {
	port io.WriteCloser
}

func New(cfg config.SerialConfig) (output.Output, error) {
	options := serial.OpenOptions{
		PortName:        cfg.Port,
		BaudRate:        cfg.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}
	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open serial port: %w", err)
	}
	return &SerialOutput{port: port}, nil
}

func (s *SerialOutput) Publish(r sampler.Record) error {
	_, err := fmt.Fprintf(s.port, "%s\r\n", r.CSV())
	return err
}

func (s *SerialOutput) Comment(line string) error {
	_, err := fmt.Fprintf(s.port, "# %s\r\n", line)
	return err
}

func (s *SerialOutput) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
