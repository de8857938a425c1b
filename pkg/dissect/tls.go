package dissect

import (
	"encoding/binary"
	"fmt"

	"github.com/netfprint/ja4core/pkg/capture"
)

// TLS content and handshake type constants (RFC 8446 §B.1, §B.3).
const (
	contentTypeHandshake = 0x16

	handshakeClientHello = 1
	handshakeServerHello = 2
	handshakeCertificate = 11
)

// extension numbers this dissector cares about; everything else is still
// reported via tls.handshake.extension.type but not otherwise decoded.
const (
	extServerName          = 0x0000
	extALPN                = 0x0010
	extSupportedVersions   = 0x002b
	extSignatureAlgorithms = 0x000d
)

// tlsStream reassembles TLS records from one direction of a connection into
// a contiguous handshake-message byte stream, then parses ClientHello,
// ServerHello and Certificate messages out of it by hand: gopacket's own
// layers.TLS only exposes record headers, never handshake contents.
type tlsStream struct {
	recordBuf    []byte // raw bytes not yet grouped into a complete TLS record
	handshakeBuf []byte // handshake-content bytes extracted from complete records
}

// feed appends newly reassembled bytes and emits one capture.Packet per
// complete handshake message it can now parse.
func (t *tlsStream) feed(data []byte, meta packetMeta, emit func(*capture.Packet)) {
	t.recordBuf = append(t.recordBuf, data...)

	for {
		if len(t.recordBuf) < 5 {
			break
		}
		contentType := t.recordBuf[0]
		recordVersion := binary.BigEndian.Uint16(t.recordBuf[1:3])
		length := int(binary.BigEndian.Uint16(t.recordBuf[3:5]))
		if len(t.recordBuf) < 5+length {
			break // record not fully captured yet
		}
		payload := t.recordBuf[5 : 5+length]
		t.recordBuf = t.recordBuf[5+length:]

		if contentType == contentTypeHandshake {
			t.handshakeBuf = append(t.handshakeBuf, payload...)
			t.drainHandshakeMessages(recordVersion, meta, emit)
		}
		// Alerts, change_cipher_spec and application_data carry nothing the
		// JA4 family reads; their bytes are simply dropped.
	}
}

func (t *tlsStream) drainHandshakeMessages(recordVersion uint16, meta packetMeta, emit func(*capture.Packet)) {
	for {
		if len(t.handshakeBuf) < 4 {
			return
		}
		msgType := t.handshakeBuf[0]
		msgLen := int(t.handshakeBuf[1])<<16 | int(t.handshakeBuf[2])<<8 | int(t.handshakeBuf[3])
		if len(t.handshakeBuf) < 4+msgLen {
			return // message body still incomplete
		}
		body := t.handshakeBuf[4 : 4+msgLen]
		t.handshakeBuf = t.handshakeBuf[4+msgLen:]

		switch msgType {
		case handshakeClientHello:
			if f, err := parseClientHello(body, recordVersion); err == nil {
				emit(meta.packet(f))
			}
		case handshakeServerHello:
			if f, err := parseServerHello(body, recordVersion); err == nil {
				emit(meta.packet(f))
			}
		case handshakeCertificate:
			for _, der := range certificatesFromMessage(body) {
				f := capture.NewFields()
				f.Add("x509af.certificate", hexString(der))
				emit(meta.packet(f))
			}
		}
	}
}

// parseClientHello decodes a ClientHello body into the dotted field names
// pkg/tls.ClientBuilder.Observe expects.
func parseClientHello(body []byte, recordVersion uint16) (*capture.Fields, error) {
	r := cursor{buf: body}

	r.skip(2)  // client_version (superseded by supported_versions when present)
	r.skip(32) // random
	if err := r.skipVector8(); err != nil { // session_id
		return nil, err
	}

	f := capture.NewFields()
	f.Add("tls.record.version", u16str(recordVersion))

	cipherBytes, err := r.vector16()
	if err != nil {
		return nil, fmt.Errorf("cipher_suites: %w", err)
	}
	for i := 0; i+1 < len(cipherBytes); i += 2 {
		f.Add("tls.handshake.ciphersuite", u16str(binary.BigEndian.Uint16(cipherBytes[i:])))
	}

	if err := r.skipVector8(); err != nil { // compression_methods
		return nil, fmt.Errorf("compression_methods: %w", err)
	}
	if r.remaining() == 0 {
		return f, nil // no extensions block at all
	}

	extBytes, err := r.vector16()
	if err != nil {
		return nil, fmt.Errorf("extensions: %w", err)
	}
	for _, ext := range iterateExtensions(extBytes) {
		f.Add("tls.handshake.extension.type", u16str(ext.typ))
		switch ext.typ {
		case extServerName:
			if host, ok := serverNameFromExtension(ext.data); ok {
				f.Add("tls.handshake.extensions.server_name", host)
			}
		case extALPN:
			for _, proto := range alpnProtocols(ext.data) {
				f.Add("tls.handshake.extensions.alpn_str", proto)
			}
		case extSupportedVersions:
			for _, v := range supportedVersionsList(ext.data) {
				f.Add("tls.handshake.extensions.supported_version", u16str(v))
			}
		case extSignatureAlgorithms:
			for _, v := range signatureAlgorithmsList(ext.data) {
				f.Add("tls.handshake.sig_hash_alg", u16str(v))
			}
		}
	}

	f.Add("tls.handshake.type", "1")
	return f, nil
}

// parseServerHello decodes a ServerHello body into the field names
// pkg/tls.ServerBuilder.Observe expects.
func parseServerHello(body []byte, recordVersion uint16) (*capture.Fields, error) {
	r := cursor{buf: body}

	r.skip(2)  // server_version
	r.skip(32) // random
	if err := r.skipVector8(); err != nil {
		return nil, err
	}

	f := capture.NewFields()
	f.Add("tls.record.version", u16str(recordVersion))

	cipher, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("cipher_suite: %w", err)
	}
	f.Add("tls.handshake.ciphersuite", u16str(cipher))

	if err := r.u8(); err != nil { // compression_method
		return nil, fmt.Errorf("compression_method: %w", err)
	}
	if r.remaining() == 0 {
		f.Add("tls.handshake.type", "2")
		return f, nil
	}

	extBytes, err := r.vector16()
	if err != nil {
		return nil, fmt.Errorf("extensions: %w", err)
	}
	for _, ext := range iterateExtensions(extBytes) {
		f.Add("tls.handshake.extension.type", u16str(ext.typ))
		switch ext.typ {
		case extALPN:
			if protos := alpnProtocols(ext.data); len(protos) > 0 {
				f.Add("tls.handshake.extensions.alpn_str", protos[0])
			}
		case extSupportedVersions:
			if len(ext.data) >= 2 {
				f.Add("tls.handshake.extensions.supported_version", u16str(binary.BigEndian.Uint16(ext.data)))
			}
		}
	}

	f.Add("tls.handshake.type", "2")
	return f, nil
}

// certificatesFromMessage splits a Certificate handshake body (RFC 8446
// §4.4.2: a 3-byte total length followed by repeated 3-byte-length-prefixed
// CertificateEntry structures) into individual DER blobs.
func certificatesFromMessage(body []byte) [][]byte {
	if len(body) < 1 {
		return nil
	}
	// TLS 1.3 adds a certificate_request_context length byte before the
	// list; TLS 1.2 does not. Both layouts agree from the list length on,
	// so detect which by checking whether the first byte is small enough
	// to be a context length rather than the top byte of a 3-byte list len.
	buf := body
	if len(buf) >= 1 && int(buf[0])+1+3 <= len(buf) {
		ctxLen := int(buf[0])
		candidate := buf[1+ctxLen:]
		if len(candidate) >= 3 {
			listLen := int(candidate[0])<<16 | int(candidate[1])<<8 | int(candidate[2])
			if listLen == len(candidate)-3 {
				buf = candidate
			}
		}
	}
	if len(buf) < 3 {
		return nil
	}
	listLen := int(buf[0])<<16 | int(buf[1])<<8 | int(buf[2])
	list := buf[3:]
	if listLen > len(list) {
		listLen = len(list)
	}
	list = list[:listLen]

	var out [][]byte
	for len(list) >= 3 {
		certLen := int(list[0])<<16 | int(list[1])<<8 | int(list[2])
		list = list[3:]
		if certLen > len(list) {
			break
		}
		out = append(out, list[:certLen])
		list = list[certLen:]
		// TLS 1.3 follows each certificate with a 2-byte extensions length
		// and that many bytes; skip them the same way the real wire does.
		if len(list) >= 2 {
			extLen := int(binary.BigEndian.Uint16(list))
			list = list[2:]
			if extLen <= len(list) {
				list = list[extLen:]
			}
		}
	}
	return out
}

type extension struct {
	typ  uint16
	data []byte
}

func iterateExtensions(buf []byte) []extension {
	var out []extension
	for len(buf) >= 4 {
		typ := binary.BigEndian.Uint16(buf)
		length := int(binary.BigEndian.Uint16(buf[2:]))
		buf = buf[4:]
		if length > len(buf) {
			break
		}
		out = append(out, extension{typ: typ, data: buf[:length]})
		buf = buf[length:]
	}
	return out
}

func serverNameFromExtension(data []byte) (string, bool) {
	if len(data) < 2 {
		return "", false
	}
	listLen := int(binary.BigEndian.Uint16(data))
	list := data[2:]
	if listLen > len(list) {
		listLen = len(list)
	}
	list = list[:listLen]
	for len(list) >= 3 {
		nameType := list[0]
		nameLen := int(binary.BigEndian.Uint16(list[1:3]))
		list = list[3:]
		if nameLen > len(list) {
			break
		}
		if nameType == 0 { // host_name
			return string(list[:nameLen]), true
		}
		list = list[nameLen:]
	}
	return "", false
}

func alpnProtocols(data []byte) []string {
	if len(data) < 2 {
		return nil
	}
	listLen := int(binary.BigEndian.Uint16(data))
	list := data[2:]
	if listLen > len(list) {
		listLen = len(list)
	}
	list = list[:listLen]
	var out []string
	for len(list) >= 1 {
		n := int(list[0])
		list = list[1:]
		if n > len(list) {
			break
		}
		out = append(out, string(list[:n]))
		list = list[n:]
	}
	return out
}

func supportedVersionsList(data []byte) []uint16 {
	if len(data) < 1 {
		return nil
	}
	n := int(data[0])
	data = data[1:]
	if n > len(data) {
		n = len(data)
	}
	data = data[:n]
	var out []uint16
	for i := 0; i+1 < len(data); i += 2 {
		out = append(out, binary.BigEndian.Uint16(data[i:]))
	}
	return out
}

func signatureAlgorithmsList(data []byte) []uint16 {
	if len(data) < 2 {
		return nil
	}
	n := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	if n > len(data) {
		n = len(data)
	}
	data = data[:n]
	var out []uint16
	for i := 0; i+1 < len(data); i += 2 {
		out = append(out, binary.BigEndian.Uint16(data[i:]))
	}
	return out
}

// cursor is a minimal big-endian reader over a byte slice, used instead of
// bytes.Reader so vector-with-length-prefix reads (TLS's recurring "1/2/3
// byte length then that many bytes" shape) read naturally.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) skip(n int) {
	c.off += n
	if c.off > len(c.buf) {
		c.off = len(c.buf)
	}
}

func (c *cursor) u8() error {
	if c.remaining() < 1 {
		return fmt.Errorf("short read")
	}
	n := int(c.buf[c.off])
	c.off++
	if c.remaining() < n {
		return fmt.Errorf("short vector")
	}
	c.off += n
	return nil
}

func (c *cursor) u16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, fmt.Errorf("short read")
	}
	v := binary.BigEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

func (c *cursor) skipVector8() error {
	if c.remaining() < 1 {
		return fmt.Errorf("short read")
	}
	n := int(c.buf[c.off])
	c.off++
	if c.remaining() < n {
		return fmt.Errorf("short vector")
	}
	c.off += n
	return nil
}

func (c *cursor) vector16() ([]byte, error) {
	if c.remaining() < 2 {
		return nil, fmt.Errorf("short read")
	}
	n := int(binary.BigEndian.Uint16(c.buf[c.off:]))
	c.off += 2
	if c.remaining() < n {
		return nil, fmt.Errorf("short vector")
	}
	out := c.buf[c.off : c.off+n]
	c.off += n
	return out, nil
}

func u16str(v uint16) string {
	return fmt.Sprintf("%d", v)
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}
