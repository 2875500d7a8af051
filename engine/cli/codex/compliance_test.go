package codex_test

import (
	"testing"

	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/engine/cli/codex"
	"github.com/dmora/runctl/enginetest/clitest"
)

func TestCompliance(t *testing.T) {
	clitest.RunBackendTests(t, func() cli.Backend {
		return codex.New()
	})
}
