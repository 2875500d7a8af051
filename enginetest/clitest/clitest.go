package clitest

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/dmora/runctl/engine/cli"
)

// universalHandle is a correlation handle that passes all current backend
// validators:
//   - Claude: ^[a-zA-Z0-9_-]{1,128}$
//   - OpenCode: ^ses_[a-zA-Z0-9]{20,40}$
//   - Codex: any non-empty, non-null string
const universalHandle = "ses_abcdefghij1234567890abcd"

// RunBackendTests runs all applicable compliance suites for a [cli.Backend].
// Continuation capabilities are discovered via type assertion, mirroring how
// the orchestrator resolves them before launching a continuation.
func RunBackendTests(t *testing.T, factory func() cli.Backend) {
	t.Helper()

	t.Run("Spawner", func(t *testing.T) {
		RunSpawnerTests(t, func() cli.Spawner { return factory() })
	})
	t.Run("Parser", func(t *testing.T) {
		RunParserTests(t, func() cli.Parser { return factory() })
	})

	probe := factory()
	_, isResumer := probe.(cli.Resumer)
	_, isForker := probe.(cli.Forker)

	t.Run("SingleContinuationPrimitive", func(t *testing.T) {
		if isResumer && isForker {
			t.Error("a backend must implement at most one of cli.Resumer and cli.Forker")
		}
	})
	if isResumer {
		t.Run("Resumer", func(t *testing.T) {
			RunContinuationTests(t, func() ContinuationFunc { return factory().(cli.Resumer).ResumeArgs })
		})
	}
	if isForker {
		t.Run("Forker", func(t *testing.T) {
			RunContinuationTests(t, func() ContinuationFunc { return factory().(cli.Forker).ForkArgs })
		})
	}
}

// RunSpawnerTests tests the [cli.Spawner] behavioral contract.
// The factory is called once per subtest to ensure fresh backend state.
func RunSpawnerTests(t *testing.T, factory func() cli.Spawner) {
	t.Helper()
	runSpawnerStructural(t, factory)
	runSpawnerSafety(t, factory)
}

// runSpawnerStructural tests structural invariants: non-empty binary, non-nil args.
func runSpawnerStructural(t *testing.T, factory func() cli.Spawner) {
	t.Helper()

	t.Run("ZeroInvocation", func(t *testing.T) {
		binary, args := factory().SpawnArgs(cli.Invocation{})
		if binary == "" {
			t.Error("binary must be non-empty")
		}
		if args == nil {
			t.Error("args must be non-nil")
		}
	})

	t.Run("BinaryNoNullBytes", func(t *testing.T) {
		binary, _ := factory().SpawnArgs(cli.Invocation{Model: "m"})
		if strings.Contains(binary, "\x00") {
			t.Error("binary must not contain null bytes")
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		inv := cli.Invocation{Model: "test-model"}
		_, a := factory().SpawnArgs(inv)
		_, b := factory().SpawnArgs(inv)
		if !slices.Equal(a, b) {
			t.Errorf("SpawnArgs not deterministic: %q vs %q", a, b)
		}
	})

	t.Run("ModelPassedThrough", func(t *testing.T) {
		_, args := factory().SpawnArgs(cli.Invocation{Model: "test-model"})
		if !slices.Contains(args, "test-model") {
			t.Errorf("args %q must carry the model", args)
		}
	})
}

// runSpawnerSafety tests safety contracts: null-byte defense, leading-dash defense.
func runSpawnerSafety(t *testing.T, factory func() cli.Spawner) {
	t.Helper()

	t.Run("NoNullBytesInArgs", func(t *testing.T) {
		_, args := factory().SpawnArgs(cli.Invocation{Model: "test-model"})
		if i, ok := indexNullArg(args); ok {
			t.Errorf("args[%d] contains null bytes", i)
		}
	})

	t.Run("NullByteModelExcluded", func(t *testing.T) {
		_, args := factory().SpawnArgs(cli.Invocation{Model: "gpt\x00evil"})
		if slices.Contains(args, "gpt\x00evil") {
			t.Error("null-byte model must not appear in args")
		}
	})

	t.Run("LeadingDashModelExcluded", func(t *testing.T) {
		_, args := factory().SpawnArgs(cli.Invocation{Model: "-evil"})
		if slices.Contains(args, "-evil") {
			t.Error("leading-dash model must not appear as a standalone arg")
		}
		if slices.Contains(args, "--model") || slices.Contains(args, "-m") {
			t.Error("model flag must be omitted entirely for leading-dash model")
		}
	})

	t.Run("UnknownOptionsIgnored", func(t *testing.T) {
		_, base := factory().SpawnArgs(cli.Invocation{})
		_, args := factory().SpawnArgs(cli.Invocation{Options: map[string]string{"other.flag": "--rm"}})
		if !slices.Equal(base, args) {
			t.Errorf("unknown options changed args: %q vs %q", base, args)
		}
	})
}

// RunParserTests tests the [cli.Parser] behavioral contract.
// Assertions use [errors.Is] to match how the engine checks parser results.
// The factory is called once per subtest to ensure fresh backend state.
func RunParserTests(t *testing.T, factory func() cli.Parser) {
	t.Helper()
	runParserErrors(t, factory)
	runParserRobustness(t, factory)
}

// runParserErrors tests error-path semantics: ErrSkipLine vs real errors.
func runParserErrors(t *testing.T, factory func() cli.Parser) {
	t.Helper()

	t.Run("EmptyLineReturnsErrSkipLine", func(t *testing.T) {
		_, err := factory().ParseLine("")
		if !errors.Is(err, cli.ErrSkipLine) {
			t.Errorf("ParseLine(\"\") error = %v, want ErrSkipLine", err)
		}
	})

	t.Run("WhitespaceOnlyReturnsErrSkipLine", func(t *testing.T) {
		_, err := factory().ParseLine("   ")
		if !errors.Is(err, cli.ErrSkipLine) {
			t.Errorf("ParseLine(\"   \") error = %v, want ErrSkipLine", err)
		}
	})

	t.Run("InvalidJSONReturnsNonSkipError", func(t *testing.T) {
		_, err := factory().ParseLine("not json")
		if err == nil {
			t.Error("ParseLine(\"not json\") should return an error")
		}
		if errors.Is(err, cli.ErrSkipLine) {
			t.Error("ParseLine(\"not json\") should return a non-skip error, got ErrSkipLine")
		}
	})
}

// garbageCorpus is a fixed set of adversarial inputs used by robustness tests.
var garbageCorpus = []string{
	"\x00",
	strings.Repeat("x", 65536),
	"{{{",
	"\xff\xfe",
	`{"":null}`,
	"null",
	"[]",
}

// runParserRobustness tests no-panic guarantees and guard invariants.
func runParserRobustness(t *testing.T, factory func() cli.Parser) {
	t.Helper()

	t.Run("GarbageNoPanic", func(t *testing.T) { //nolint:revive // no assertions: panics are the failure signal
		_ = t
		p := factory()
		for _, input := range append(slices.Clone(garbageCorpus), `{"type":99}`, `{"type":true}`, `{"type":[]}`) {
			_, _ = p.ParseLine(input)
		}
	})

	t.Run("ValidEventHasType", func(t *testing.T) {
		p := factory()
		corpus := append(slices.Clone(garbageCorpus), `{"type":99}`, `{"type":"unknown"}`)
		for _, input := range corpus {
			ev, err := p.ParseLine(input)
			if err == nil && ev.Type == "" {
				t.Errorf("ParseLine(%q) returned event with empty Type and nil error", input)
			}
		}
	})

	t.Run("UnknownTypeIsNotTerminal", func(t *testing.T) {
		ev, err := factory().ParseLine(`{"type":"unknown"}`)
		if err == nil && ev.Terminal() {
			t.Error("unknown event types must not count as terminal")
		}
	})
}

// ContinuationFunc is the shape shared by ResumeArgs and ForkArgs.
type ContinuationFunc func(cli.Invocation) (string, []string, error)

// RunContinuationTests tests the contract shared by [cli.Resumer] and
// [cli.Forker]: a handle is required, rejected when malformed, and carried
// into the args.
func RunContinuationTests(t *testing.T, factory func() ContinuationFunc) {
	t.Helper()

	t.Run("NoHandle", func(t *testing.T) {
		if _, _, err := factory()(cli.Invocation{}); err == nil {
			t.Error("continuation with no handle should return an error")
		}
	})

	t.Run("NullByteHandle", func(t *testing.T) {
		if _, _, err := factory()(cli.Invocation{Handle: "abc\x00def"}); err == nil {
			t.Error("continuation with null-byte handle should return an error")
		}
	})

	t.Run("ValidHandle", func(t *testing.T) {
		binary, args, err := factory()(cli.Invocation{Handle: universalHandle, Model: "test-model"})
		if err != nil {
			t.Fatalf("continuation with valid handle should not error: %v", err)
		}
		if binary == "" {
			t.Error("binary must be non-empty")
		}
		if !slices.Contains(args, universalHandle) {
			t.Errorf("args %v must contain handle %q", args, universalHandle)
		}
		if i, ok := indexNullArg(args); ok {
			t.Errorf("args[%d] contains null bytes", i)
		}
	})
}

// indexNullArg returns the index of the first arg containing a null byte.
func indexNullArg(args []string) (int, bool) {
	for i, a := range args {
		if strings.Contains(a, "\x00") {
			return i, true
		}
	}
	return 0, false
}
