package testutils

import (
	"testing"
	"time"
)

var (
	ConnectTimeout = 10 * time.Second
	PollInterval   = 10 * time.Millisecond
)

// WithTimeout polls f until it returns an empty string. The test fails with the
// last message f returned once ConnectTimeout has passed.
func WithTimeout(t testing.TB, f func() string) {
	t.Helper()
	deadline := time.Now().Add(ConnectTimeout)
	for {
		lastErr := f()
		if lastErr == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("did not reach expected state after %v: %s", ConnectTimeout, lastErr)
		}
		time.Sleep(PollInterval)
	}
}
