package tls

import (
	"fmt"
	"net"
	"strconv"

	"github.com/netfprint/ja4core/internal/canon"
	"github.com/netfprint/ja4core/pkg/capture"
)

// clientState tracks the TlsClient builder's lifecycle: only the first
// ClientHello observed on a flow contributes to JA4 (spec.md §4.8).
type clientState int

const (
	clientIdle clientState = iota
	clientGotHello
)

// ClientBuilder accumulates the TLS ClientHello features JA4 is computed
// from. It is created lazily, once per flow, the first time a packet
// carries `tls.handshake.type == 1`.
type ClientBuilder struct {
	state     clientState
	transport capture.Transport

	recordVersion     uint16
	supportedVersions []uint16
	sniHost           string
	sniSeen           bool
	alpn              []string
	ciphers           []uint16
	extensions        []uint16
	sigAlgs           []uint16
}

// NewClientBuilder returns a builder for a flow carried over transport.
func NewClientBuilder(transport capture.Transport) *ClientBuilder {
	return &ClientBuilder{transport: transport}
}

// Observe folds a packet's field map into the builder. Only the first
// ClientHello is kept; subsequent ones (retransmits, renegotiation) are
// ignored rather than overwriting already-captured state.
func (b *ClientBuilder) Observe(f *capture.Fields) error {
	typ, ok := f.Get("tls.handshake.type")
	if !ok || typ != "1" {
		return nil
	}
	if b.state != clientIdle {
		return nil
	}

	if rv, ok := f.Get("tls.record.version"); ok {
		v, err := parseU16(rv)
		if err != nil {
			return fmt.Errorf("tls.record.version: %w", err)
		}
		b.recordVersion = v
	}
	for _, sv := range f.All("tls.handshake.extensions.supported_version") {
		v, err := parseU16(sv)
		if err != nil {
			continue // malformed entry: skip it, keep the rest (spec.md §4.8)
		}
		b.supportedVersions = append(b.supportedVersions, v)
	}
	if sni, ok := f.Get("tls.handshake.extensions.server_name"); ok {
		b.sniSeen = true
		b.sniHost = sni
	}
	b.alpn = append(b.alpn, f.All("tls.handshake.extensions.alpn_str")...)
	for _, c := range f.All("tls.handshake.ciphersuite") {
		v, err := parseU16(c)
		if err != nil {
			continue
		}
		b.ciphers = append(b.ciphers, v)
	}
	for _, e := range f.All("tls.handshake.extension.type") {
		v, err := parseU16(e)
		if err != nil {
			continue
		}
		b.extensions = append(b.extensions, v)
	}
	for _, s := range f.All("tls.handshake.sig_hash_alg") {
		v, err := parseU16(s)
		if err != nil {
			continue
		}
		b.sigAlgs = append(b.sigAlgs, v)
	}

	b.state = clientGotHello
	return nil
}

// HasHello reports whether a ClientHello was ever observed; flows with no
// TLS traffic never emit a JA4, per spec.md's Lifecycle section.
func (b *ClientBuilder) HasHello() bool {
	return b.state == clientGotHello
}

func isSNIIP(host string) bool {
	return net.ParseIP(host) != nil
}

const (
	extSNI  uint16 = 0x0000
	extALPN uint16 = 0x0010
)

// partA returns the fixed-width prefix described in spec.md §4.2.
func (b *ClientBuilder) partA() string {
	proto := protoChar(b.transport)
	ver := resolveVersion(b.recordVersion, b.supportedVersions)

	sni := "i"
	if b.sniSeen && !isSNIIP(b.sniHost) {
		sni = "d"
	}

	numCiphers := canon.Count(canon.FilterGrease(b.ciphers))

	// Extension count includes signature algorithms but excludes SNI/ALPN
	// (spec.md §4.2), unlike the hashed extension list in partCRaw which
	// excludes SNI/ALPN but keeps sigalgs in a separate hash segment.
	var nonSNIALPN int
	for _, e := range canon.FilterGrease(b.extensions) {
		if e != extSNI && e != extALPN {
			nonSNIALPN++
		}
	}
	extCount := nonSNIALPN + len(canon.FilterGrease(b.sigAlgs))
	if extCount > 99 {
		extCount = 99
	}

	alpn := "00"
	if len(b.alpn) > 0 {
		alpn = alpnCode(b.alpn[0])
	}

	return fmt.Sprintf("%s%s%s%02d%02d%s", proto, ver, sni, numCiphers, extCount, alpn)
}

// partBRaw returns the comma-joined, GREASE-filtered cipher list that
// hashes into JA4's second segment.
func (b *ClientBuilder) partBRaw(mode canon.Order) string {
	tokens := canon.HexTokens(canon.FilterGrease(b.ciphers))
	return canon.Join(canon.Arrange(tokens, mode))
}

// partCRaw returns the `<extensions>_<sigalgs>` string that hashes into
// JA4's third segment. Extensions are GREASE/SNI/ALPN filtered and ordered
// per mode; signature algorithms are always in original order, regardless
// of mode, per spec.md §4.2.
func (b *ClientBuilder) partCRaw(mode canon.Order) string {
	var filtered []uint16
	for _, e := range canon.FilterGrease(b.extensions) {
		if e != extSNI && e != extALPN {
			filtered = append(filtered, e)
		}
	}
	extTokens := canon.Arrange(canon.HexTokens(filtered), mode)
	sigTokens := canon.HexTokens(canon.FilterGrease(b.sigAlgs))

	out := canon.Join(extTokens)
	if len(sigTokens) > 0 {
		out += "_" + canon.Join(sigTokens)
	}
	return out
}

// JA4 returns the canonical (hashed) JA4 fingerprint.
func (b *ClientBuilder) JA4(mode canon.Order) string {
	return b.partA() + "_" + canon.Hash12(b.partBRaw(mode)) + "_" + canon.Hash12(b.partCRaw(mode))
}

// JA4Raw returns the raw-mode JA4 fingerprint, exposing the unhashed
// source strings per spec.md §6's raw-output option.
func (b *ClientBuilder) JA4Raw(mode canon.Order) string {
	return b.partA() + "_" + b.partBRaw(mode) + "_" + b.partCRaw(mode)
}

func protoChar(t capture.Transport) string {
	switch t {
	case capture.QUIC:
		return "q"
	default:
		return "t"
	}
}

func parseU16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
