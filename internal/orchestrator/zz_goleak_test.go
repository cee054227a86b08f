package orchestrator_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that every serial executor and queue worker goroutine
// started by the orchestrators built in this package's tests has exited by
// the time the suite finishes, catching a Close() that forgets to drain one
// of them.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
		goleak.IgnoreTopFunction("runtime.gopark"),
	)
}
