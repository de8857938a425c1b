package tls

import (
	"fmt"

	"github.com/netfprint/ja4core/internal/canon"
	"github.com/netfprint/ja4core/pkg/capture"
)

type serverState int

const (
	serverIdle serverState = iota
	serverGotHello
)

// ServerBuilder accumulates the ServerHello features JA4S is computed from.
// Unlike the client builder, server-side lists are never reordered: JA4S
// always reports the server's actual wire order (spec.md §4.3).
type ServerBuilder struct {
	state serverState

	transport         capture.Transport
	recordVersion     uint16
	supportedVersions []uint16
	cipher            uint16
	alpn              string
	extensions        []uint16
}

// NewServerBuilder returns a builder for a new flow.
func NewServerBuilder(transport capture.Transport) *ServerBuilder {
	return &ServerBuilder{transport: transport}
}

// Observe folds a packet's field map into the builder. Only the first
// ServerHello contributes.
func (b *ServerBuilder) Observe(f *capture.Fields) error {
	typ, ok := f.Get("tls.handshake.type")
	if !ok || typ != "2" {
		return nil
	}
	if b.state != serverIdle {
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
			continue
		}
		b.supportedVersions = append(b.supportedVersions, v)
	}
	if c, ok := f.Get("tls.handshake.ciphersuite"); ok {
		v, err := parseU16(c)
		if err == nil {
			b.cipher = v
		}
	}
	if alpn, ok := f.Get("tls.handshake.extensions.alpn_str"); ok {
		b.alpn = alpn
	}
	for _, e := range f.All("tls.handshake.extension.type") {
		v, err := parseU16(e)
		if err != nil {
			continue
		}
		b.extensions = append(b.extensions, v)
	}

	b.state = serverGotHello
	return nil
}

// HasHello reports whether a ServerHello was observed on this flow.
func (b *ServerBuilder) HasHello() bool {
	return b.state == serverGotHello
}

func (b *ServerBuilder) partA() string {
	proto := protoChar(b.transport)
	ver := resolveVersion(b.recordVersion, b.supportedVersions)
	extCount := canon.Count(canon.FilterGrease(b.extensions))
	alpn := alpnCode(b.alpn)
	return fmt.Sprintf("%s%s%02d%s", proto, ver, extCount, alpn)
}

// partBRaw returns `<extensions>_<cipher>`, extensions in original server
// order (GREASE filtered, never sorted), followed by the single chosen
// cipher.
func (b *ServerBuilder) partBRaw() string {
	extTokens := canon.HexTokens(canon.FilterGrease(b.extensions))
	return canon.Join(extTokens) + "_" + canon.HexToken(b.cipher)
}

// JA4S returns the canonical (hashed) JA4S fingerprint.
func (b *ServerBuilder) JA4S() string {
	return b.partA() + "_" + canon.Hash12(b.partBRaw())
}

// JA4SRaw returns the raw-mode JA4S fingerprint.
func (b *ServerBuilder) JA4SRaw() string {
	return b.partA() + "_" + b.partBRaw()
}
