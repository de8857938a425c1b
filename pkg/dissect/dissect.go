// Package dissect is the concrete producer of capture.Packet values: it
// reads a pcap/pcapng capture file with gopacket, reassembles TCP byte
// streams, and hand-parses the TLS, HTTP/1, HTTP/2 and SSH protocol events
// the fingerprint builders in pkg/tls, pkg/http, pkg/certs, pkg/latency and
// pkg/ssh expect. Everything downstream of Run only ever sees capture.Packet
// values, never a gopacket type, keeping the dissector a swappable,
// external-to-the-core collaborator as spec.md §1 describes it.
package dissect

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/reassembly"

	"github.com/netfprint/ja4core/pkg/capture"
)

const pcapngMagic = 0x0A0D0D0A

// pcapSource is satisfied by both pcapgo.Reader (classic pcap) and
// pcapgo.NgReader (pcapng); Run picks whichever one the file's magic bytes
// call for.
type pcapSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Run reads every packet in the capture at path, in file order, and calls
// sink once per protocol event it can decode: a ClientHello, a ServerHello,
// a certificate, an HTTP request, an SSH banner or packet, or a bare TCP
// control packet's flags. QUIC and other UDP-carried traffic is not
// decoded (see DESIGN.md for why QUIC decryption was out of scope).
func Run(path string, sink func(*capture.Packet)) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	br := bufio.NewReader(fh)
	magic, err := br.Peek(4)
	if err != nil {
		return fmt.Errorf("read capture header: %w", err)
	}

	var src pcapSource
	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}

	counter := new(uint64)
	factory := &streamFactory{sink: sink, counter: counter}
	pool := reassembly.NewStreamPool(factory)
	assembler := reassembly.NewAssembler(pool)

	var lastTS time.Time
	var packetNum uint64
	for {
		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		lastTS = ci.Timestamp
		packetNum++

		pkt := gopacket.NewPacket(data, src.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		tcpLayer := pkt.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue // UDP/QUIC traffic: not decoded by this dissector
		}
		tcp := tcpLayer.(*layers.TCP)

		netFlow, srcEP, dstEP, ttl, ok := networkDetails(pkt, tcp)
		if !ok {
			continue
		}

		flags := capture.NewFields()
		flags.Add("tcp.flags.syn", boolStr(tcp.SYN))
		flags.Add("tcp.flags.ack", boolStr(tcp.ACK))
		flags.Add("tcp.flags.reset", boolStr(tcp.RST))
		flags.Add("ip.ttl", strconv.Itoa(ttl))
		sink(&capture.Packet{
			Number:      packetNum,
			TimestampUs: ci.Timestamp.UnixMicro(),
			Src:         srcEP,
			Dst:         dstEP,
			Transport:   capture.TCP,
			Fields:      flags,
		})

		assembler.AssembleWithContext(netFlow, tcp, &assemblerContext{ci: ci})
	}

	if !lastTS.IsZero() {
		// Force every still-open connection through ReassemblyComplete so
		// the last handshake message of a trailing flow isn't dropped.
		horizon := lastTS.Add(time.Hour)
		assembler.FlushWithOptions(reassembly.FlushOptions{T: horizon, TC: horizon})
	}
	return nil
}

type assemblerContext struct {
	ci gopacket.CaptureInfo
}

func (a *assemblerContext) GetCaptureInfo() gopacket.CaptureInfo {
	return a.ci
}

func networkDetails(pkt gopacket.Packet, tcp *layers.TCP) (netFlow gopacket.Flow, src, dst capture.Endpoint, ttl int, ok bool) {
	if ip4 := pkt.Layer(layers.LayerTypeIPv4); ip4 != nil {
		l := ip4.(*layers.IPv4)
		netFlow = l.NetworkFlow()
		ttl = int(l.TTL)
	} else if ip6 := pkt.Layer(layers.LayerTypeIPv6); ip6 != nil {
		l := ip6.(*layers.IPv6)
		netFlow = l.NetworkFlow()
		ttl = int(l.HopLimit)
	} else {
		return gopacket.Flow{}, capture.Endpoint{}, capture.Endpoint{}, 0, false
	}

	nSrc, nDst := netFlow.Src(), netFlow.Dst()
	src = capture.Endpoint{Addr: net.IP(nSrc.Raw()), Port: uint16(tcp.SrcPort)}
	dst = capture.Endpoint{Addr: net.IP(nDst.Raw()), Port: uint16(tcp.DstPort)}
	return netFlow, src, dst, ttl, true
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
