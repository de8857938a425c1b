// Package http implements the JA4H (HTTP client) fingerprint builder
// described in spec.md §4.4.
package http

import (
	"fmt"
	"strings"

	"github.com/netfprint/ja4core/internal/canon"
	"github.com/netfprint/ja4core/pkg/capture"
)

// httpState records whether the builder has seen a request yet. Unlike the
// TLS builders, Http emits one fingerprint per request rather than one per
// flow, so there is no "already emitted" terminal state: every request is
// rendered as soon as Observe sees it.
type httpState int

const (
	httpIdle httpState = iota
	httpAccumulating
)

// request holds the accumulated fields for a single HTTP request.
type request struct {
	method           string
	version          string
	acceptLang       string
	acceptLangInHash bool     // Accept-Language counts toward headerNames but not hh
	headerNames      []string // in order of appearance, excluding cookie/referer/pseudo
	cookieNames      []string
	cookiePairs      []string // "name=value"
	hasCookie        bool
	hasReferer       bool
}

// Builder accumulates HTTP requests observed on a flow and produces one
// JA4H string per request.
type Builder struct {
	state   httpState
	current *request

	fingerprints []string // JA4H strings in request order
	raw          []string // matching raw-mode strings
}

// NewBuilder returns a builder for a new flow.
func NewBuilder() *Builder {
	return &Builder{}
}

// Observe folds a packet's field map into the builder. Each packet carrying
// `http.request.method` is one complete request: its own
// `http.request.line` entries are its headers, and its JA4H is rendered
// immediately. Packets without a method are ignored. Cookie lists are
// always rendered in lexical order; the builder has no original-order
// setting.
func (b *Builder) Observe(f *capture.Fields) error {
	method, ok := f.Get("http.request.method")
	if !ok {
		return nil
	}

	req := &request{method: method}
	if v, ok := f.Get("http.request.version"); ok {
		req.version = v
	}

	for _, line := range f.All("http.request.line") {
		name, value, ok := splitHeaderLine(line)
		if !ok {
			continue
		}
		lower := strings.ToLower(name)

		switch {
		case lower == "cookie":
			req.hasCookie = true
			req.cookieNames = append(req.cookieNames, cookieNames(value)...)
			req.cookiePairs = append(req.cookiePairs, cookiePairs(value)...)
		case lower == "referer" || lower == "referrer":
			req.hasReferer = true
		case strings.HasPrefix(name, ":"):
			// HTTP/2 pseudo-header, excluded from both count and hash.
		default:
			if lower == "accept-language" {
				if req.acceptLang == "" {
					req.acceptLang = value
				}
				req.acceptLangInHash = true
			}
			req.headerNames = append(req.headerNames, name)
		}
	}

	b.current = req
	b.state = httpAccumulating
	b.fingerprints = append(b.fingerprints, b.render(req, canon.Sorted))
	b.raw = append(b.raw, b.renderRaw(req, canon.Sorted))
	return nil
}

// Fingerprints returns the JA4H strings in request order.
func (b *Builder) Fingerprints() []string {
	return b.fingerprints
}

// RawFingerprints returns the unhashed source strings for each request, in
// the same order as Fingerprints, exposing the segments raw-output mode
// reports instead of their hashes.
func (b *Builder) RawFingerprints() []string {
	return b.raw
}

// splitHeaderLine parses a "Name: Value" dissector line. A leading colon
// belongs to an HTTP/2 pseudo-header name (":authority: example.com").
func splitHeaderLine(line string) (name, value string, ok bool) {
	start := 0
	if strings.HasPrefix(line, ":") {
		start = 1
	}
	idx := strings.Index(line[start:], ":")
	if idx < 0 {
		return "", "", false
	}
	idx += start
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// cookieNames splits a Cookie header value "a=1; b=2" into ["a", "b"].
func cookieNames(value string) []string {
	var out []string
	for _, pair := range strings.Split(value, ";") {
		name, _, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && name != "" {
			out = append(out, name)
		}
	}
	return out
}

// cookiePairs splits a Cookie header value into ["a=1", "b=2"].
func cookiePairs(value string) []string {
	var out []string
	for _, pair := range strings.Split(value, ";") {
		pair = strings.TrimSpace(pair)
		if pair != "" {
			out = append(out, pair)
		}
	}
	return out
}

func methodPrefix(method string) string {
	method = strings.ToLower(method)
	if len(method) >= 2 {
		return method[:2]
	}
	return method
}

// versionCode compacts an HTTP version string to the two-digit JA4H code.
func versionCode(version string) string {
	v := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(version, "HTTP/"), "http/"))
	switch v {
	case "0.9":
		return "09"
	case "1.0":
		return "10"
	case "1.1", "1":
		return "11"
	case "2", "2.0", "h2":
		return "20"
	case "3", "3.0", "h3":
		return "30"
	default:
		return "00"
	}
}

// acceptLanguageCode extracts the primary subtag of the first listed
// Accept-Language value (e.g. "en-US,fr;q=0.8" -> "en"), lowercases it, and
// right-pads it with '0' to 4 characters, truncating if longer.
func acceptLanguageCode(header string) string {
	if header == "" {
		return "0000"
	}
	first := header
	if i := strings.IndexAny(first, ",;"); i >= 0 {
		first = first[:i]
	}
	primary := first
	if i := strings.IndexByte(primary, '-'); i >= 0 {
		primary = primary[:i]
	}
	primary = strings.ToLower(strings.TrimSpace(primary))
	if primary == "" {
		return "0000"
	}
	if len(primary) >= 4 {
		return primary[:4]
	}
	return primary + strings.Repeat("0", 4-len(primary))
}

func (b *Builder) render(req *request, mode canon.Order) string {
	cc := "n"
	if req.hasCookie {
		cc = "c"
	}
	rr := "n"
	if req.hasReferer {
		rr = "r"
	}

	headerCount := fmt.Sprintf("%02d", headerCountFor(req))

	prefix := fmt.Sprintf("%s%s%s%s%s%s",
		methodPrefix(req.method), versionCode(req.version), cc, rr, headerCount,
		acceptLanguageCode(req.acceptLang))

	// Header names hash in order of appearance, never sorted (spec.md §4.4);
	// only the cookie hashes use mode, which Observe always passes as
	// canon.Sorted.
	headerHash := canon.Hash12(canon.Join(req.headerNames))
	cookieNameHash := canon.Hash12(canon.Join(canon.Arrange(req.cookieNames, mode)))
	cookiePairHash := canon.Hash12(canon.Join(canon.Arrange(req.cookiePairs, mode)))

	return prefix + "_" + headerHash + "_" + cookieNameHash + "_" + cookiePairHash
}

func (b *Builder) renderRaw(req *request, mode canon.Order) string {
	cc := "n"
	if req.hasCookie {
		cc = "c"
	}
	rr := "n"
	if req.hasReferer {
		rr = "r"
	}
	headerCount := fmt.Sprintf("%02d", headerCountFor(req))

	prefix := fmt.Sprintf("%s%s%s%s%s%s",
		methodPrefix(req.method), versionCode(req.version), cc, rr, headerCount,
		acceptLanguageCode(req.acceptLang))

	return prefix + "_" + canon.Join(req.headerNames) +
		"_" + canon.Join(canon.Arrange(req.cookieNames, mode)) +
		"_" + canon.Join(canon.Arrange(req.cookiePairs, mode))
}

// headerCountFor returns `hh`: the number of non-excluded headers, not
// counting Accept-Language (it is reported separately in the aabb slot even
// though it still appears in the header-name hash), capped at 99.
func headerCountFor(req *request) int {
	n := len(req.headerNames)
	if req.acceptLangInHash {
		n--
	}
	if n > 99 {
		return 99
	}
	if n < 0 {
		return 0
	}
	return n
}
