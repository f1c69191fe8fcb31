package output

import (
	"github.com/ericogr/ina226-power-logger/pkg/sampler"
	"github.com/rs/zerolog/log"
)

// Output is a telemetry sink: data records plus the comment lines of the
// preamble and diagnostics. Sinks add their own "#" prefix and line framing.
type Output interface {
	Publish(sampler.Record) error
	Comment(line string) error
	Close() error
}

// Multi fans out to several sinks. A failing sink is logged and skipped so
// the remaining sinks keep receiving the stream.
type Multi struct {
	outs []Output
}

func NewMulti(outs ...Output) *Multi { return &Multi{outs: outs} }

func (m *Multi) Publish(r sampler.Record) error {
	for _, o := range m.outs {
		if err := o.Publish(r); err != nil {
			log.Warn().Err(err).Msg("sink publish failed")
		}
	}
	return nil
}

func (m *Multi) Comment(line string) error {
	for _, o := range m.outs {
		if err := o.Comment(line); err != nil {
			log.Warn().Err(err).Msg("sink comment failed")
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var first error
	for _, o := range m.outs {
		if err := o.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
