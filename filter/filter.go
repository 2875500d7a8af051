// Package filter provides composable middleware for runctl event sequences.
// Consumers wrap cli.Stream with these functions to select the events they
// need. Errors always pass through so callers can still observe them.
package filter

import (
	"fmt"
	"iter"
	"strings"

	"github.com/dmora/runctl"
)

// Filter returns a sequence that only passes events of the given types.
// With no types, every event is dropped.
func Filter(seq iter.Seq2[runctl.Event, error], types ...runctl.EventType) iter.Seq2[runctl.Event, error] {
	allowed := make(map[runctl.EventType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return pipe(seq, func(ev runctl.Event) bool {
		_, ok := allowed[ev.Type]
		return ok
	})
}

// Visible drops system events, keeping what a human reading a run cares
// about.
func Visible(seq iter.Seq2[runctl.Event, error]) iter.Seq2[runctl.Event, error] {
	return pipe(seq, func(ev runctl.Event) bool {
		return ev.Type != runctl.EventSystem
	})
}

// ResultOnly returns a sequence that passes only terminal result events.
func ResultOnly(seq iter.Seq2[runctl.Event, error]) iter.Seq2[runctl.Event, error] {
	return pipe(seq, runctl.Event.Terminal)
}

// ParseTypes parses a comma-separated list of event types.
// Whitespace around items is ignored; an empty string yields nil.
func ParseTypes(csv string) ([]runctl.EventType, error) {
	var out []runctl.EventType
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		t := runctl.EventType(item)
		if !knownType(t) {
			return nil, fmt.Errorf("%w: unknown event type %q: valid: %s",
				runctl.ErrUsage, item, strings.Join(typeNames(), ", "))
		}
		out = append(out, t)
	}
	return out, nil
}

var allTypes = []runctl.EventType{
	runctl.EventInit, runctl.EventText, runctl.EventThinking,
	runctl.EventToolResult, runctl.EventError, runctl.EventSystem, runctl.EventResult,
}

func knownType(t runctl.EventType) bool {
	for _, k := range allTypes {
		if k == t {
			return true
		}
	}
	return false
}

func typeNames() []string {
	names := make([]string, len(allTypes))
	for i, t := range allTypes {
		names[i] = string(t)
	}
	return names
}

// pipe passes events accepted by the predicate and every error.
func pipe(seq iter.Seq2[runctl.Event, error], accept func(runctl.Event) bool) iter.Seq2[runctl.Event, error] {
	return func(yield func(runctl.Event, error) bool) {
		for ev, err := range seq {
			if err != nil {
				if !yield(ev, err) {
					return
				}
				continue
			}
			if accept(ev) && !yield(ev, nil) {
				return
			}
		}
	}
}
