package store

import (
	"net"
	"reflect"
	"testing"

	"github.com/netfprint/ja4core/pkg/capture"
	"github.com/netfprint/ja4core/pkg/stream"
)

func TestDocumentFromCopiesAllFingerprintFields(t *testing.T) {
	rec := stream.Record{
		Client:     capture.Endpoint{Addr: net.ParseIP("10.0.0.1"), Port: 51000},
		Server:     capture.Endpoint{Addr: net.ParseIP("10.0.0.2"), Port: 443},
		Transport:  "tcp",
		JA4:        "t13d0304h2_aaaa_bbbb",
		JA4H:       []string{"ge11cn03en00_x_y_z"},
		JA4SSH:     []string{"c36s52_120_80_0"},
	}

	doc := documentFrom(rec, 1700000000)

	if doc.Client != "10.0.0.1:51000" {
		t.Errorf("Client = %q, want 10.0.0.1:51000", doc.Client)
	}
	if doc.JA4 != rec.JA4 {
		t.Errorf("JA4 = %q, want %q", doc.JA4, rec.JA4)
	}
	if !reflect.DeepEqual(doc.JA4H, rec.JA4H) {
		t.Errorf("JA4H = %v, want %v", doc.JA4H, rec.JA4H)
	}
	if doc.ObservedAt != 1700000000 {
		t.Errorf("ObservedAt = %d, want 1700000000", doc.ObservedAt)
	}
}

func TestTopNByCountKeepsHighestCounts(t *testing.T) {
	counts := map[string]int{"a": 5, "b": 9, "c": 1, "d": 9}
	got := topNByCount(counts, 2)

	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	// "b" and "d" tie at 9; both must survive a cut to 2, "a"/"c" must not.
	if got["b"] != 9 || got["d"] != 9 {
		t.Errorf("got %v, want b and d at count 9", got)
	}
}

func TestTopNByCountNoTruncationWhenUnderLimit(t *testing.T) {
	counts := map[string]int{"a": 1, "b": 2}
	got := topNByCount(counts, 10)
	if !reflect.DeepEqual(got, counts) {
		t.Errorf("got %v, want %v unchanged", got, counts)
	}
}

func TestTallySkipsEmptyValueAndNilMap(t *testing.T) {
	m := map[string]int{}
	tally(m, "")
	if len(m) != 0 {
		t.Errorf("tally with empty value mutated map: %v", m)
	}
	tally(nil, "x") // must not panic
}
