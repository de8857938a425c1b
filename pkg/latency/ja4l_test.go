package latency

import (
	"testing"

	"github.com/netfprint/ja4core/pkg/capture"
)

func TestJA4LSeedScenario(t *testing.T) {
	b := NewBuilder()
	b.Observe(capture.Client, 1000, 64, true, false)   // SYN
	b.Observe(capture.Server, 51000, 128, true, true)  // SYN-ACK
	b.Observe(capture.Client, 76000, 64, false, true)  // ACK

	if !b.HasHandshake() {
		t.Fatal("HasHandshake() = false after full 3-way handshake")
	}

	clientFP, ok := b.ClientFingerprint()
	if !ok || clientFP != "12500_64" {
		t.Errorf("ClientFingerprint() = (%q, %v), want (12500_64, true)", clientFP, ok)
	}

	serverFP, ok := b.ServerFingerprint()
	if !ok || serverFP != "25000_128" {
		t.Errorf("ServerFingerprint() = (%q, %v), want (25000_128, true)", serverFP, ok)
	}
}

func TestJA4LIncompleteHandshakeOmitsFingerprint(t *testing.T) {
	b := NewBuilder()
	b.Observe(capture.Client, 1000, 64, true, false)
	b.Observe(capture.Server, 51000, 128, true, true)
	// No closing ACK observed.

	if b.HasHandshake() {
		t.Fatal("HasHandshake() = true without a closing ACK")
	}
	if _, ok := b.ClientFingerprint(); ok {
		t.Error("ClientFingerprint() should be absent on an incomplete handshake")
	}
	if _, ok := b.ServerFingerprint(); ok {
		t.Error("ServerFingerprint() should be absent on an incomplete handshake")
	}
}

func TestJA4LLaterSynIgnoredAfterHandshakeComplete(t *testing.T) {
	b := NewBuilder()
	b.Observe(capture.Client, 1000, 64, true, false)
	b.Observe(capture.Server, 51000, 128, true, true)
	b.Observe(capture.Client, 76000, 64, false, true)

	want, _ := b.ClientFingerprint()
	b.Observe(capture.Client, 999999, 1, true, false) // retransmit / unrelated SYN
	got, _ := b.ClientFingerprint()

	if got != want {
		t.Errorf("a later SYN changed the fingerprint: %q != %q", got, want)
	}
}
