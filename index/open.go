package index

import (
	"context"
	"fmt"

	"github.com/dmora/runctl"
)

// Backend names accepted by Open.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Open opens the index of the given backend. jsonPath and sqlitePath are
// the locations for each backend; only the selected one is used.
func Open(ctx context.Context, backend, jsonPath, sqlitePath string) (Log, error) {
	switch backend {
	case "", BackendJSONL:
		return OpenFile(jsonPath)
	case BackendSQLite:
		return OpenSQLite(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q: valid: %s, %s",
			runctl.ErrUsage, backend, BackendJSONL, BackendSQLite)
	}
}
