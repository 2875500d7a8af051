// Package clitest provides compliance test suites for [cli.Backend] implementations.
//
// Test authors call [RunBackendTests] with a factory function that returns the
// implementation under test. The suite discovers the continuation
// capabilities ([cli.Resumer], [cli.Forker]) via type assertion and checks
// that a backend offers at most one of them.
//
// Example usage in a backend test file:
//
//	package mybackend_test
//
//	import (
//	    "testing"
//	    "github.com/dmora/runctl/engine/cli"
//	    "github.com/dmora/runctl/engine/cli/mybackend"
//	    "github.com/dmora/runctl/enginetest/clitest"
//	)
//
//	func TestCompliance(t *testing.T) {
//	    clitest.RunBackendTests(t, func() cli.Backend {
//	        return mybackend.New()
//	    })
//	}
package clitest
