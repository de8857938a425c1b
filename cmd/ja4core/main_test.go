package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// devNull opens a writable scratch file standing in for stdout/stderr in
// tests that only care about run's return value, not what it printed.
func devNull(t *testing.T) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "out"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open scratch file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestRun_NoPcapArgument_Errors(t *testing.T) {
	out, errOut := devNull(t), devNull(t)
	err := run([]string{"-json"}, out, errOut)
	if err == nil {
		t.Fatal("expected an error with no capture file argument")
	}
	if !strings.Contains(err.Error(), "exactly one capture file") {
		t.Errorf("error = %q, want it to mention the missing capture file", err)
	}
}

func TestRun_TooManyArguments_Errors(t *testing.T) {
	out, errOut := devNull(t), devNull(t)
	err := run([]string{"a.pcap", "b.pcap"}, out, errOut)
	if err == nil {
		t.Fatal("expected an error with two positional arguments")
	}
}

func TestRun_UnknownFlag_Errors(t *testing.T) {
	out, errOut := devNull(t), devNull(t)
	err := run([]string{"-not-a-real-flag", "a.pcap"}, out, errOut)
	if err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}

func TestRun_MissingCaptureFile_Errors(t *testing.T) {
	out, errOut := devNull(t), devNull(t)
	missing := filepath.Join(t.TempDir(), "does-not-exist.pcap")
	err := run([]string{missing}, out, errOut)
	if err == nil {
		t.Fatal("expected an error for a nonexistent capture file")
	}
	if !strings.Contains(err.Error(), "dissect") {
		t.Errorf("error = %q, want it wrapped with the dissect step", err)
	}
}
