package console

import (
	"fmt"

	"github.com/ericogr/ina226-power-logger/pkg/output"
	"github.com/ericogr/ina226-power-logger/pkg/sampler"
)

// ConsoleOutput writes the two-phase text protocol to stdout: "# " comment
// lines, then one CSV line per record.
type ConsoleOutput struct{}

func New() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(r sampler.Record) error {
	_, err := fmt.Println(r.CSV())
	return err
}

func (c *ConsoleOutput) Comment(line string) error {
	_, err := fmt.Printf("# %s\n", line)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
