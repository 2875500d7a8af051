// Package enginetest provides compliance test suites for runctl executor
// backends.
//
// CLI backend compliance tests live in the clitest sub-package.
package enginetest
