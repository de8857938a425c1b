// Package tls implements the JA4 (TLS client) and JA4S (TLS server)
// fingerprint builders described in spec.md §4.2–§4.3. Each builder
// accumulates state from the field map the external dissector attaches to
// packets carrying a ClientHello or ServerHello, and produces the canonical
// JA4/JA4S string on demand.
package tls

import "github.com/netfprint/ja4core/internal/canon"

// versionCode maps a wire-format TLS/SSL version number to its two-character
// JA4 encoding (spec.md §4.2).
func versionCode(v uint16) string {
	switch v {
	case 0x0304:
		return "13"
	case 0x0303:
		return "12"
	case 0x0302:
		return "11"
	case 0x0301:
		return "10"
	case 0x0300:
		return "s3"
	case 0x0002:
		return "s2"
	default:
		return "00"
	}
}

// resolveVersion picks the effective TLS version per spec.md: the maximum
// value in supportedVersions if that extension was present (GREASE
// filtered), otherwise the record-layer version.
func resolveVersion(recordVersion uint16, supportedVersions []uint16) string {
	filtered := canon.FilterGrease(supportedVersions)
	if len(filtered) == 0 {
		return versionCode(recordVersion)
	}
	max := filtered[0]
	for _, v := range filtered[1:] {
		if v > max {
			max = v
		}
	}
	return versionCode(max)
}

// alpnCode implements FoxIO's ALPN character-extraction rule: the first and
// last character of the first advertised ALPN value ("http/1.1" -> "h1",
// "h2" -> "h2"), duplicating the sole character for single-byte values.
// Non-ASCII values are not representable in this two-character slot and
// fall back to "99", matching the published JA4 behavior.
func alpnCode(alpn string) string {
	if alpn == "" {
		return "00"
	}
	for i := 0; i < len(alpn); i++ {
		if alpn[i] >= 0x80 {
			return "99"
		}
	}
	if len(alpn) == 1 {
		return string([]byte{alpn[0], alpn[0]})
	}
	return string([]byte{alpn[0], alpn[len(alpn)-1]})
}
