package dissect

import (
	"bytes"
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/reassembly"

	"github.com/netfprint/ja4core/pkg/capture"
)

// packetMeta carries the addressing and timing context a protocol parser
// needs to turn a decoded field map into a capture.Packet.
type packetMeta struct {
	src, dst    capture.Endpoint
	timestampUs int64
	number      uint64
}

func (m packetMeta) packet(f *capture.Fields) *capture.Packet {
	return &capture.Packet{
		Number:      m.number,
		TimestampUs: m.timestampUs,
		Src:         m.src,
		Dst:         m.dst,
		Transport:   capture.TCP,
		Fields:      f,
	}
}

// protocolHandler is whichever per-direction byte-stream parser a
// connection's first sniffed bytes selected.
type protocolHandler interface {
	feed(data []byte, meta packetMeta, emit func(*capture.Packet))
}

// direction buffers one side of a TCP connection until enough bytes have
// arrived to sniff which protocol it carries, then hands all further bytes
// to that protocol's parser for the life of the connection.
type direction struct {
	handler protocolHandler
	pending []byte
}

const sniffThreshold = 4
const sniffGiveUpAt = 4096

func (d *direction) feed(data []byte, meta packetMeta, emit func(*capture.Packet)) {
	if d.handler != nil {
		d.handler.feed(data, meta, emit)
		return
	}

	d.pending = append(d.pending, data...)
	if len(d.pending) < sniffThreshold {
		return
	}

	switch {
	case d.pending[0] == contentTypeHandshake && d.pending[1] == 0x03:
		d.handler = &tlsStream{}
	case bytes.HasPrefix(d.pending, []byte(http2Preface)):
		d.handler = newHTTP2Stream()
	case looksLikeHTTP1Request(d.pending):
		d.handler = &http1Stream{}
	case bytes.HasPrefix(d.pending, []byte("SSH-")):
		d.handler = &sshStream{}
	default:
		if len(d.pending) > sniffGiveUpAt {
			d.pending = nil // not a protocol this dissector decodes
		}
		return
	}

	buffered := d.pending
	d.pending = nil
	d.handler.feed(buffered, meta, emit)
}

// streamFactory builds one tcpStream per TCP connection reassembly
// observes, per the reassembly.StreamFactory contract.
type streamFactory struct {
	sink    func(*capture.Packet)
	counter *uint64
}

func (sf *streamFactory) New(net, transport gopacket.Flow, tcp *layers.TCP, ac reassembly.AssemblerContext) reassembly.Stream {
	return &tcpStream{
		net:        net,
		transport:  transport,
		fsm:        reassembly.NewTCPSimpleFSM(reassembly.TCPSimpleFSMOptions{SupportMissingEstablishment: true}),
		optchecker: reassembly.NewTCPOptionCheck(),
		sink:       sf.sink,
		counter:    sf.counter,
	}
}

// tcpStream is one bidirectional TCP connection. It holds two independent
// direction sniffers since client->server and server->client bytes are
// (almost always) different protocol roles — a ClientHello one way, a
// ServerHello the other.
type tcpStream struct {
	net, transport gopacket.Flow
	fsm            *reassembly.TCPSimpleFSM
	optchecker     reassembly.TCPOptionCheck

	clientToServer direction
	serverToClient direction

	sink    func(*capture.Packet)
	counter *uint64
}

// Accept tolerates captures that start mid-connection or have gappy TCP
// options (common in trimmed pcaps used for fingerprinting fixtures)
// rather than dropping their payload outright.
func (t *tcpStream) Accept(tcp *layers.TCP, ci gopacket.CaptureInfo, dir reassembly.TCPFlowDirection, nextSeq reassembly.Sequence, start *bool, ac reassembly.AssemblerContext) bool {
	t.fsm.CheckState(tcp, dir)
	t.optchecker.Accept(tcp, ci, dir, nextSeq, start)
	return true
}

func (t *tcpStream) ReassembledSG(sg reassembly.ScatterGather, ac reassembly.AssemblerContext) {
	dir, _, _, skip := sg.Info()
	length, _ := sg.Lengths()
	if skip != 0 || length == 0 {
		return
	}
	data := sg.Fetch(length)

	*t.counter++
	meta := packetMeta{
		timestampUs: sg.CaptureInfo(0).Timestamp.UnixMicro(),
		number:      *t.counter,
	}
	meta.src, meta.dst = endpointsForDirection(t.net, t.transport, dir)

	if dir == reassembly.TCPDirClientToServer {
		t.clientToServer.feed(data, meta, t.sink)
	} else {
		t.serverToClient.feed(data, meta, t.sink)
	}
}

func (t *tcpStream) ReassemblyComplete(ac reassembly.AssemblerContext) bool {
	return true
}

func endpointsForDirection(netFlow, transport gopacket.Flow, dir reassembly.TCPFlowDirection) (src, dst capture.Endpoint) {
	nSrc, nDst := netFlow.Src(), netFlow.Dst()
	tSrc, tDst := transport.Src(), transport.Dst()
	if dir != reassembly.TCPDirClientToServer {
		nSrc, nDst = nDst, nSrc
		tSrc, tDst = tDst, tSrc
	}
	return capture.Endpoint{Addr: net.IP(nSrc.Raw()), Port: portFromEndpoint(tSrc)},
		capture.Endpoint{Addr: net.IP(nDst.Raw()), Port: portFromEndpoint(tDst)}
}

func portFromEndpoint(e gopacket.Endpoint) uint16 {
	raw := e.Raw()
	if len(raw) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(raw)
}
