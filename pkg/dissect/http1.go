package dissect

import (
	"bytes"
	"strings"

	"github.com/netfprint/ja4core/pkg/capture"
)

var http1Methods = []string{
	"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH", "CONNECT", "TRACE",
}

func looksLikeHTTP1Request(buf []byte) bool {
	for _, m := range http1Methods {
		if bytes.HasPrefix(buf, []byte(m+" ")) {
			return true
		}
	}
	return false
}

// http1Stream parses HTTP/1.x request lines and headers out of a
// reassembled byte stream. It only looks at the header block up to the
// first blank line; request bodies are not tracked, so a flow that
// pipelines a request with a body immediately followed by another request
// can misparse the second request's first bytes as part of the first's
// body. JA4H only reads headers, and capture fixtures used for
// fingerprinting are overwhelmingly bodyless GETs, so this is an accepted
// simplification rather than a full RFC 9112 message parser.
type http1Stream struct {
	buf []byte
}

func (h *http1Stream) feed(data []byte, meta packetMeta, emit func(*capture.Packet)) {
	h.buf = append(h.buf, data...)

	for {
		idx := bytes.Index(h.buf, []byte("\r\n\r\n"))
		if idx < 0 {
			return
		}
		block := h.buf[:idx]
		h.buf = h.buf[idx+4:]

		lines := strings.Split(string(block), "\r\n")
		if len(lines) == 0 {
			continue
		}
		requestLine := strings.Fields(lines[0])
		if len(requestLine) != 3 {
			continue
		}

		f := capture.NewFields()
		f.Add("http.request.method", requestLine[0])
		f.Add("http.request.version", requestLine[2])
		for _, line := range lines[1:] {
			if line == "" {
				continue
			}
			f.Add("http.request.line", line)
		}
		emit(meta.packet(f))
	}
}
