package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestUsageWarnsAboutDaemon verifies -help tells users the CLI skips the
// daemon's lock and lists the flags.
func TestUsageWarnsAboutDaemon(t *testing.T) {
	var buf bytes.Buffer
	usage(&buf)

	out := buf.String()
	if !strings.Contains(out, daemonNote) {
		t.Errorf("usage does not mention the daemon lock:\n%s", out)
	}
	if !strings.Contains(out, "-dry-run") {
		t.Errorf("usage does not list flags:\n%s", out)
	}
}
