//go:build !windows

package orchestrator

import (
	"io"
	"iter"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
)

// Events parses captured executor output written by a run of family.
// Each call gets a fresh parser.
func (o *Orchestrator) Events(r io.Reader, family runctl.Family) (iter.Seq2[runctl.Event, error], error) {
	b, err := o.backend(family)
	if err != nil {
		return nil, err
	}
	return cli.Stream(r, b, 0), nil
}
