package ssh

import (
	"testing"

	"github.com/netfprint/ja4core/pkg/capture"
)

func fillWindow(b *Builder, clientLen, serverLen, toServer, toClient int) {
	for i := 0; i < toServer; i++ {
		b.ObservePacket(capture.Client, clientLen)
	}
	for i := 0; i < toClient; i++ {
		b.ObservePacket(capture.Server, serverLen)
	}
}

func TestJA4SSHSeedScenario(t *testing.T) {
	b := NewBuilder()
	b.ObserveVersion()
	fillWindow(b, 36, 52, 120, 80)

	segs := b.Segments()
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if want := "c36s52_120_80_0"; segs[0] != want {
		t.Errorf("segment = %q, want %q", segs[0], want)
	}
}

func TestJA4SSHPacketsBeforeVersionExchangeIgnored(t *testing.T) {
	b := NewBuilder()
	b.ObservePacket(capture.Client, 100) // before version exchange: ignored
	b.ObserveVersion()
	fillWindow(b, 36, 52, 199, 1)

	if len(b.Segments()) != 1 {
		t.Fatalf("got %d segments, want 1", len(b.Segments()))
	}
}

func TestJA4SSHWindowingCeilingFormula(t *testing.T) {
	b := NewBuilder()
	b.ObserveVersion()

	total := 450 // ceil(450/200) == 3 segments once finalized
	for i := 0; i < total; i++ {
		sender := capture.Client
		if i%2 == 0 {
			sender = capture.Server
		}
		b.ObservePacket(sender, 40+i%5)
	}
	b.Finalize()

	if got, want := len(b.Segments()), 3; got != want {
		t.Errorf("got %d segments for %d packets, want %d", got, total, want)
	}
}

func TestJA4SSHResetsCountedPerWindow(t *testing.T) {
	b := NewBuilder()
	b.ObserveVersion()
	b.ObserveReset()
	fillWindow(b, 10, 20, 100, 100)

	segs := b.Segments()
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if want := "c10s20_100_100_1"; segs[0] != want {
		t.Errorf("segment = %q, want %q", segs[0], want)
	}
}
