package serialport

import (
	"bytes"
	"testing"

	"github.com/ericogr/ina226-power-logger/pkg/sampler"
)

type writeCloserBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *writeCloserBuffer) Close() error {
	b.closed = true
	return nil
}

func TestSerialPublishLineFraming(t *testing.T) {
	buf := &writeCloserBuffer{}
	s := &SerialOutput{port: buf}
	rec := sampler.Record{TimestampMillis: 50, BusVoltage: 5.0, Current: 96.8, NetCurrent: 84.8, Power: 484.0, CumulativeEnergy: 0.00672}
	if err := s.Publish(rec); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := "50,5.000000,96.8000,84.8000,484.0000,0.006720\r\n"
	if got := buf.String(); got != want {
		t.Fatalf("serial line mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestSerialCommentPrefix(t *testing.T) {
	buf := &writeCloserBuffer{}
	s := &SerialOutput{port: buf}
	if err := s.Comment("DATA_START"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if got := buf.String(); got != "# DATA_START\r\n" {
		t.Fatalf("comment line mismatch: %q", got)
	}
}

func TestSerialClose(t *testing.T) {
	buf := &writeCloserBuffer{}
	s := &SerialOutput{port: buf}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !buf.closed {
		t.Fatal("underlying port not closed")
	}
}
