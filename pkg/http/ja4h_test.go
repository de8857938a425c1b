package http

import (
	"testing"

	"github.com/netfprint/ja4core/internal/canon"
	"github.com/netfprint/ja4core/pkg/capture"
)

func TestJA4HSeedScenario(t *testing.T) {
	f := capture.NewFields()
	f.Add("http.request.method", "GET")
	f.Add("http.request.version", "1.1")
	f.Add("http.request.line", "Host: example.com")
	f.Add("http.request.line", "User-Agent: curl/8.0")
	f.Add("http.request.line", "Accept: */*")
	f.Add("http.request.line", "Cookie: a=1; b=2")
	f.Add("http.request.line", "Accept-Language: en-US,fr;q=0.8")

	b := NewBuilder()
	if err := b.Observe(f); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	got := b.Fingerprints()
	if len(got) != 1 {
		t.Fatalf("Fingerprints() returned %d entries, want 1", len(got))
	}

	wantHeaderHash := canon.Hash12("Host,User-Agent,Accept,Accept-Language")
	wantPrefix := "ge11cn03en00"
	if want := wantPrefix + "_" + wantHeaderHash; got[0][:len(want)] != want {
		t.Errorf("JA4H = %q, want prefix %q", got[0], want)
	}
}

func TestJA4HNoCookieNoReferer(t *testing.T) {
	f := capture.NewFields()
	f.Add("http.request.method", "POST")
	f.Add("http.request.version", "2")
	f.Add("http.request.line", "Host: example.com")
	f.Add("http.request.line", ":authority: example.com")

	b := NewBuilder()
	_ = b.Observe(f)
	got := b.Fingerprints()[0]

	wantPrefix := "po20nn01" + "0000"
	if got[:len(wantPrefix)] != wantPrefix {
		t.Errorf("prefix = %q, want %q", got[:len(wantPrefix)], wantPrefix)
	}
	if canon.Hash12("") != "000000000000" {
		t.Fatal("sanity check failed")
	}
	// No cookies: both cookie hash segments fall back to the empty hash.
	emptyHash := canon.Hash12("")
	if got[len(got)-len(emptyHash)*2-1:] != emptyHash+"_"+emptyHash {
		t.Errorf("expected trailing empty cookie hashes in %q", got)
	}
}

func TestJA4HMultipleRequestsProduceOneFingerprintEach(t *testing.T) {
	b := NewBuilder()

	f1 := capture.NewFields()
	f1.Add("http.request.method", "GET")
	f1.Add("http.request.version", "1.1")
	f1.Add("http.request.line", "Host: a.example.com")
	_ = b.Observe(f1)

	f2 := capture.NewFields()
	f2.Add("http.request.method", "POST")
	f2.Add("http.request.version", "1.1")
	f2.Add("http.request.line", "Host: a.example.com")
	f2.Add("http.request.line", "Content-Type: application/json")
	_ = b.Observe(f2)

	if got := len(b.Fingerprints()); got != 2 {
		t.Fatalf("got %d fingerprints, want 2", got)
	}
	if b.Fingerprints()[0] == b.Fingerprints()[1] {
		t.Error("distinct requests produced identical fingerprints")
	}
}

func TestAcceptLanguageCodeTruncatesAndPads(t *testing.T) {
	cases := map[string]string{
		"":              "0000",
		"en-US,fr;q=0.8": "en00",
		"fr":            "fr00",
		"zh-Hans-CN":    "zh00",
	}
	for in, want := range cases {
		if got := acceptLanguageCode(in); got != want {
			t.Errorf("acceptLanguageCode(%q) = %q, want %q", in, got, want)
		}
	}
}
