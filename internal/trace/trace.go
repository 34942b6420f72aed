// Package trace provides opt-in diagnostic tracing for repository
// operations, switched on by the GOVCS_TRACE environment variable. It is
// never a hard logging dependency: nothing in this module calls a target
// that isn't explicitly enabled, and the zero value is silent.
package trace

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

var (
	logger  = log.New(os.Stderr, "govcs: ", log.Ltime|log.Lmicroseconds)
	current atomic.Int32
)

// Target is a tracing target. Targets combine with bitwise OR.
type Target int32

const (
	// Ops traces repository operations: commit, checkout, merge, reset,
	// rebase, bisect.
	Ops Target = 1 << iota

	// Journal traces journal append/truncate activity.
	Journal

	// Transport traces fetch/push negotiation over HTTP.
	Transport
)

func init() {
	for _, name := range strings.Split(os.Getenv("GOVCS_TRACE"), ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "ops":
			Enable(Ops)
		case "journal":
			Enable(Journal)
		case "transport":
			Enable(Transport)
		case "all":
			Enable(Ops | Journal | Transport)
		}
	}
}

// Enable turns on the given targets in addition to whatever is already
// enabled.
func Enable(t Target) {
	for {
		old := current.Load()
		if current.CompareAndSwap(old, old|int32(t)) {
			return
		}
	}
}

// Enabled reports whether t is currently traced.
func (t Target) Enabled() bool {
	return int32(t)&current.Load() != 0
}

// Printf logs a formatted trace line if t is enabled.
func (t Target) Printf(format string, args ...any) {
	if t.Enabled() {
		logger.Output(2, fmt.Sprintf(format, args...)) // nolint: errcheck
	}
}
