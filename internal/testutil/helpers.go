package testutil

import (
	"os"
	"testing"
)

// RequireVM skips the test unless the BONDVET_VM_TEST environment variable
// is set. Tests that create real bond interfaces need root, a disposable
// kernel, and the bonding module loaded; they only run in the lab VM.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("BONDVET_VM_TEST") == "" {
		t.Skip("Skipping test: requires BONDVET_VM_TEST environment")
	}
}
