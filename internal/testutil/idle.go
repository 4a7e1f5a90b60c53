package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Idler is anything that reports whether background work is pending, such
// as *engine.Reasoner.
type Idler interface {
	IsRunning() bool
}

// DefaultIdleTimeout bounds WaitIdle.
const DefaultIdleTimeout = 5 * time.Second

// WaitIdle blocks until r reports no pending work, failing the test after
// DefaultIdleTimeout.
func WaitIdle(t testing.TB, r Idler) {
	t.Helper()
	require.Eventually(t, func() bool { return !r.IsRunning() },
		DefaultIdleTimeout, time.Millisecond, "reasoner did not become idle")
}
