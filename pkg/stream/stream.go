// Package stream implements the stream reconstructor described in
// spec.md §4.1: it groups packets into flows keyed by a symmetric 5-tuple,
// assigns client/server orientation, and dispatches each packet to the
// per-protocol fingerprint builders a Flow lazily creates.
package stream

import (
	"encoding/hex"
	"log"
	"strconv"

	"github.com/netfprint/ja4core/internal/canon"
	"github.com/netfprint/ja4core/pkg/capture"
	"github.com/netfprint/ja4core/pkg/certs"
	httpfp "github.com/netfprint/ja4core/pkg/http"
	"github.com/netfprint/ja4core/pkg/latency"
	"github.com/netfprint/ja4core/pkg/ssh"
	tlsfp "github.com/netfprint/ja4core/pkg/tls"
)

// orientationState tracks whether a flow's client endpoint is settled or
// still provisional (spec.md §3's Orientation invariant).
type orientationState int

const (
	orientUnset orientationState = iota
	orientProvisional
	orientSettled
)

// Flow holds all per-protocol builder state for one FlowKey. Builders are
// tagged variants rather than a dynamically dispatched interface list,
// created lazily the first time a packet triggers them (spec.md §9).
type Flow struct {
	transport   capture.Transport
	firstSeenAt int64
	firstSrc    capture.Endpoint
	firstDst    capture.Endpoint
	clientAddr  capture.Endpoint
	orientation orientationState

	tlsClient *tlsfp.ClientBuilder
	tlsServer *tlsfp.ServerBuilder
	http      *httpfp.Builder
	certs     *certs.Builder
	timing    *latency.Builder
	ssh       *ssh.Builder
}

// sender determines which endpoint of the flow sent p, settling orientation
// on the first qualifying packet and leaving it unchanged afterward.
func (f *Flow) sender(p *capture.Packet) capture.Sender {
	switch f.orientation {
	case orientUnset:
		f.clientAddr = p.Src
		if isClientHandshakeSignal(p) {
			f.orientation = orientSettled
		} else {
			f.orientation = orientProvisional
		}
	case orientProvisional:
		if isClientHandshakeSignal(p) {
			f.clientAddr = p.Src
			f.orientation = orientSettled
		}
	case orientSettled:
		// Orientation invariant: once settled, never reconsidered.
	}

	if p.Src.Equal(f.clientAddr) {
		return capture.Client
	}
	return capture.Server
}

// serverAddr returns the flow's other endpoint: whichever of the two
// addresses first observed on this flow is not the current client.
func (f *Flow) serverAddr() capture.Endpoint {
	if f.clientAddr.Equal(f.firstSrc) {
		return f.firstDst
	}
	return f.firstSrc
}

// isClientHandshakeSignal reports whether p carries one of the two
// orientation-defining events from spec.md §3: a bare TCP SYN, or a TLS
// ClientHello (used for QUIC/UDP, which has no TCP handshake).
func isClientHandshakeSignal(p *capture.Packet) bool {
	if syn, ok := p.Fields.Get("tcp.flags.syn"); ok && syn == "1" {
		if ack, ok := p.Fields.Get("tcp.flags.ack"); !ok || ack != "1" {
			return true
		}
	}
	if typ, ok := p.Fields.Get("tls.handshake.type"); ok && typ == "1" {
		return true
	}
	return false
}

// Record is one flow's output: its key and whatever fingerprints its
// builders produced.
type Record struct {
	Client     capture.Endpoint
	Server     capture.Endpoint
	Transport  string
	JA4        string
	JA4Raw     string   `json:"ja4_raw,omitempty"`
	JA4S       string
	JA4SRaw    string   `json:"ja4s_raw,omitempty"`
	JA4H       []string
	JA4HRaw    []string `json:"ja4h_raw,omitempty"`
	JA4X       []string
	JA4LClient string
	JA4LServer string
	JA4SSH     []string
}

// Streams maintains the FlowKey -> Flow mapping and the first-seen order
// flows are emitted in at finalization. FlowKey embeds net.IP and is not
// itself comparable, so the map is keyed by its string form instead.
type Streams struct {
	flows    map[string]*Flow
	order    []string
	rawMode  bool
	sortMode canon.Order
}

// New returns an empty Streams collector. rawMode controls whether output
// records expose unhashed source strings alongside the canonical hashes,
// and sortMode selects lexicographic sorting versus spec.md's
// `original_order` mode for the JA4 cipher and extension lists. JA4H
// cookie lists are always sorted, whatever sortMode is.
func New(rawMode bool, sortMode canon.Order) *Streams {
	return &Streams{
		flows:    make(map[string]*Flow),
		rawMode:  rawMode,
		sortMode: sortMode,
	}
}

// Update folds one packet into its flow, creating the flow and any builder
// it triggers on first touch. Per spec.md §4.1, dispatch rules are checked
// independently: a single packet may fan out to multiple builders.
func (s *Streams) Update(p *capture.Packet) {
	key := capture.NewFlowKey(p.Src, p.Dst, p.Transport)
	id := key.String()
	flow, ok := s.flows[id]
	if !ok {
		flow = &Flow{
			transport:   p.Transport,
			firstSeenAt: p.TimestampUs,
			firstSrc:    p.Src,
			firstDst:    p.Dst,
		}
		s.flows[id] = flow
		s.order = append(s.order, id)
	}

	who := flow.sender(p)

	if typ, ok := p.Fields.Get("tls.handshake.type"); ok {
		switch typ {
		case "1":
			if flow.tlsClient == nil {
				flow.tlsClient = tlsfp.NewClientBuilder(p.Transport)
			}
			if err := flow.tlsClient.Observe(p.Fields); err != nil {
				log.Printf("packet %d: ja4: %v", p.Number, err)
			}
		case "2":
			if flow.tlsServer == nil {
				flow.tlsServer = tlsfp.NewServerBuilder(p.Transport)
			}
			if err := flow.tlsServer.Observe(p.Fields); err != nil {
				log.Printf("packet %d: ja4s: %v", p.Number, err)
			}
		}
	}

	if _, ok := p.Fields.Get("http.request.method"); ok {
		if flow.http == nil {
			flow.http = httpfp.NewBuilder()
		}
		if err := flow.http.Observe(p.Fields); err != nil {
			log.Printf("packet %d: ja4h: %v", p.Number, err)
		}
	}

	if der, ok := certificateDER(p.Fields); ok {
		if flow.certs == nil {
			flow.certs = certs.NewBuilder()
		}
		if err := flow.certs.Observe(der); err != nil {
			log.Printf("packet %d: ja4x: %v", p.Number, err)
		}
	}

	if syn, hasSyn := p.Fields.Get("tcp.flags.syn"); hasSyn {
		if flow.timing == nil {
			flow.timing = latency.NewBuilder()
		}
		ack, _ := p.Fields.Get("tcp.flags.ack")
		ttl := ttlOf(p.Fields)
		flow.timing.Observe(who, p.TimestampUs, ttl, syn == "1", ack == "1")
	} else if ack, hasAck := p.Fields.Get("tcp.flags.ack"); hasAck && flow.timing != nil {
		ttl := ttlOf(p.Fields)
		flow.timing.Observe(who, p.TimestampUs, ttl, false, ack == "1")
	}

	if _, ok := p.Fields.Get("ssh.protocol"); ok {
		if flow.ssh == nil {
			flow.ssh = ssh.NewBuilder()
		}
		flow.ssh.ObserveVersion()
	}
	if plen, ok := p.Fields.Get("ssh.packet_length"); ok {
		if flow.ssh == nil {
			flow.ssh = ssh.NewBuilder()
		}
		if n, err := parseInt(plen); err == nil {
			flow.ssh.ObservePacket(who, n)
		} else {
			log.Printf("packet %d: ja4ssh: %v", p.Number, err)
		}
	}
	if reset, ok := p.Fields.Get("tcp.flags.reset"); ok && reset == "1" && flow.ssh != nil {
		flow.ssh.ObserveReset()
	}
}

// Finalize closes any open windows and yields one Record per flow in
// first-seen order.
func (s *Streams) Finalize() []Record {
	out := make([]Record, 0, len(s.order))
	for _, key := range s.order {
		flow := s.flows[key]
		out = append(out, s.render(flow))
	}
	return out
}

func (s *Streams) render(flow *Flow) Record {
	rec := Record{
		Client:    flow.clientAddr,
		Server:    flow.serverAddr(),
		Transport: flow.transport.String(),
	}

	if flow.tlsClient != nil && flow.tlsClient.HasHello() {
		rec.JA4 = flow.tlsClient.JA4(s.sortMode)
		if s.rawMode {
			rec.JA4Raw = flow.tlsClient.JA4Raw(s.sortMode)
		}
	}
	if flow.tlsServer != nil && flow.tlsServer.HasHello() {
		rec.JA4S = flow.tlsServer.JA4S()
		if s.rawMode {
			rec.JA4SRaw = flow.tlsServer.JA4SRaw()
		}
	}
	if flow.http != nil {
		rec.JA4H = flow.http.Fingerprints()
		if s.rawMode {
			rec.JA4HRaw = flow.http.RawFingerprints()
		}
	}
	if flow.certs != nil {
		rec.JA4X = flow.certs.Fingerprints()
	}
	if flow.timing != nil {
		if fp, ok := flow.timing.ClientFingerprint(); ok {
			rec.JA4LClient = fp
		}
		if fp, ok := flow.timing.ServerFingerprint(); ok {
			rec.JA4LServer = fp
		}
	}
	if flow.ssh != nil {
		flow.ssh.Finalize()
		rec.JA4SSH = flow.ssh.Segments()
	}

	return rec
}

func ttlOf(f *capture.Fields) int {
	if v, ok := f.Get("ip.ttl"); ok {
		if n, err := parseInt(v); err == nil {
			return n
		}
	}
	return 0
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// certificateDER looks for a DER-encoded certificate blob under the
// x509af.* field family the dispatch table in spec.md §4.1 names. The
// dissector reports binary fields as hex strings, matching tshark's
// convention for raw byte fields.
func certificateDER(f *capture.Fields) ([]byte, bool) {
	v, ok := f.Get("x509af.certificate")
	if !ok || v == "" {
		return nil, false
	}
	der, err := hex.DecodeString(v)
	if err != nil {
		return nil, false
	}
	return der, true
}
