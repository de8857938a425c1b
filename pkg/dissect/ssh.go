package dissect

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/netfprint/ja4core/pkg/capture"
)

const maxSSHBannerLen = 255

// maxPlausibleSSHPacket bounds the 32-bit length prefix read off the wire;
// anything larger almost certainly means the stream was misclassified as
// SSH rather than that a real packet is this big.
const maxPlausibleSSHPacket = 1 << 20

// sshStream detects the SSH version-exchange banner and, once past it,
// reports each subsequent binary packet's on-wire length. JA4SSH only needs
// packet lengths and direction (spec.md §4.7); the binary protocol payload
// itself is encrypted after key exchange and is never decoded.
type sshStream struct {
	versionSeen bool
	buf         []byte
}

func (s *sshStream) feed(data []byte, meta packetMeta, emit func(*capture.Packet)) {
	s.buf = append(s.buf, data...)

	if !s.versionSeen {
		idx := bytes.Index(s.buf, []byte("\r\n"))
		switch {
		case idx >= 0:
			banner := s.buf[:idx]
			s.buf = s.buf[idx+2:]
			s.versionSeen = true
			if bytes.HasPrefix(banner, []byte("SSH-")) {
				f := capture.NewFields()
				f.Add("ssh.protocol", string(banner))
				emit(meta.packet(f))
			}
		case len(s.buf) > maxSSHBannerLen:
			s.versionSeen = true // banner never terminated: treat the rest as opaque binary
		default:
			return
		}
	}

	for len(s.buf) >= 4 {
		// The first 4 bytes of an SSH binary packet are its own length
		// field (RFC 4253 §6): padding_length + payload + padding, MAC and
		// the length field itself excluded — exactly the payload-length
		// signal JA4SSH buckets into its modal-length windows.
		packetLen := int(binary.BigEndian.Uint32(s.buf))
		total := 4 + packetLen
		if packetLen <= 0 || packetLen > maxPlausibleSSHPacket || len(s.buf) < total {
			return
		}
		f := capture.NewFields()
		f.Add("ssh.packet_length", strconv.Itoa(packetLen))
		emit(meta.packet(f))
		s.buf = s.buf[total:]
	}
}
