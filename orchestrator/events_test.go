//go:build !windows

package orchestrator_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/filter"
	"github.com/dmora/runctl/orchestrator"
)

func TestEvents_ReplaysCapturedOutput(t *testing.T) {
	h := newHarness(t, nil)
	out := h.launch(orchestrator.LaunchRequest{Model: "claude-haiku-4", Prompt: "x"})

	f, err := os.Open(h.layout.Run(out.RunID()).Output())
	require.NoError(t, err)
	defer f.Close()

	seq, err := h.orc.Events(f, out.Record.Family)
	require.NoError(t, err)

	var got []runctl.Event
	for ev, err := range filter.ResultOnly(seq) {
		require.NoError(t, err)
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "claude answer", got[0].Content)

	_, err = h.orc.Events(f, runctl.Family("unknown"))
	require.ErrorIs(t, err, runctl.ErrUnavailable)
}
