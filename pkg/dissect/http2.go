package dissect

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/netfprint/ja4core/pkg/capture"
)

// http2Preface is the fixed client connection preface (RFC 9113 §3.4) that
// precedes the first SETTINGS frame on an h2c or negotiated-h2 connection.
const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

const frameTypeHeaders = 0x1

// http2Stream decodes HEADERS frames out of a reassembled HTTP/2 byte
// stream, mirroring the teacher's connection_state.go HPACK usage but
// reading frames out of a captured stream instead of a live socket. The
// HPACK decoder is held for the stream's lifetime since its dynamic table
// carries state across frames.
type http2Stream struct {
	buf     []byte
	decoder *hpack.Decoder
}

func newHTTP2Stream() *http2Stream {
	return &http2Stream{decoder: hpack.NewDecoder(4096, nil)}
}

func (h *http2Stream) feed(data []byte, meta packetMeta, emit func(*capture.Packet)) {
	h.buf = append(h.buf, data...)
	if bytes.HasPrefix(h.buf, []byte(http2Preface)) {
		h.buf = h.buf[len(http2Preface):]
	}

	for {
		if len(h.buf) < 9 {
			return
		}
		length := int(h.buf[0])<<16 | int(h.buf[1])<<8 | int(h.buf[2])
		frameType := h.buf[3]
		if len(h.buf) < 9+length {
			return
		}
		frameBytes := h.buf[:9+length]
		h.buf = h.buf[9+length:]

		if frameType != frameTypeHeaders {
			continue
		}
		h.decodeHeadersFrame(frameBytes, meta, emit)
	}
}

func (h *http2Stream) decodeHeadersFrame(frameBytes []byte, meta packetMeta, emit func(*capture.Packet)) {
	fr := http2.NewFramer(io.Discard, bytes.NewReader(frameBytes))
	frame, err := fr.ReadFrame()
	if err != nil {
		return
	}
	hf, ok := frame.(*http2.HeadersFrame)
	if !ok {
		return
	}
	fields, err := h.decoder.DecodeFull(hf.HeaderBlockFragment())
	if err != nil {
		return
	}

	f := capture.NewFields()
	method := "GET"
	for _, field := range fields {
		switch {
		case field.Name == ":method":
			method = field.Value
		case strings.HasPrefix(field.Name, ":"):
			// Other pseudo-headers (:path, :scheme, :authority) carry no
			// JA4H signal and are dropped rather than mis-split as a
			// "Name: Value" line (their names already contain a colon).
		default:
			f.Add("http.request.line", field.Name+": "+field.Value)
		}
	}
	f.Add("http.request.method", method)
	f.Add("http.request.version", "2")
	emit(meta.packet(f))
}
