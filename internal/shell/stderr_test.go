package shell

import (
	"io"
	"os"
	"testing"
)

// hijackStderr redirects os.Stderr to an in-memory pipe for the duration
// of a test, since writeErr always targets the real os.Stderr var.
func hijackStderr(t *testing.T) (restore func()) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w
	stderrPipeR, stderrPipeW = r, w
	return func() {
		os.Stderr = orig
	}
}

var stderrPipeR, stderrPipeW *os.File

// drainStderr closes the write end of the hijacked pipe and reads
// whatever was written to it so far.
func drainStderr(t *testing.T) string {
	t.Helper()
	stderrPipeW.Close()
	data, err := io.ReadAll(stderrPipeR)
	if err != nil {
		t.Fatalf("reading hijacked stderr: %v", err)
	}
	return string(data)
}
