package stream

import (
	"net"
	"testing"

	"github.com/netfprint/ja4core/internal/canon"
	"github.com/netfprint/ja4core/pkg/capture"
)

func endpoint(ip string, port uint16) capture.Endpoint {
	return capture.Endpoint{Addr: net.ParseIP(ip), Port: port}
}

func tcpPacket(n uint64, src, dst capture.Endpoint, ts int64, fields *capture.Fields) *capture.Packet {
	return &capture.Packet{
		Number:      n,
		TimestampUs: ts,
		Src:         src,
		Dst:         dst,
		Transport:   capture.TCP,
		Fields:      fields,
	}
}

func TestStreamsOrientationSettledBySYN(t *testing.T) {
	client := endpoint("10.0.0.1", 51000)
	server := endpoint("10.0.0.2", 443)

	s := New(false, canon.Sorted)

	synAck := capture.NewFields()
	synAck.Add("tcp.flags.syn", "1")
	synAck.Add("tcp.flags.ack", "1")
	s.Update(tcpPacket(1, server, client, 1000, synAck)) // server speaks first, mid-flow capture

	syn := capture.NewFields()
	syn.Add("tcp.flags.syn", "1")
	syn.Add("tcp.flags.ack", "0")
	s.Update(tcpPacket(2, client, server, 500, syn)) // retroactively establishes client

	recs := s.Finalize()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if !recs[0].Client.Equal(client) {
		t.Errorf("Client = %v, want %v", recs[0].Client, client)
	}
}

func TestStreamsOrientationNeverFlipsOnceSettled(t *testing.T) {
	client := endpoint("10.0.0.1", 51000)
	server := endpoint("10.0.0.2", 443)

	s := New(false, canon.Sorted)

	syn := capture.NewFields()
	syn.Add("tcp.flags.syn", "1")
	s.Update(tcpPacket(1, client, server, 1000, syn))

	laterSyn := capture.NewFields()
	laterSyn.Add("tcp.flags.syn", "1")
	s.Update(tcpPacket(2, server, client, 2000, laterSyn)) // a SYN from the other side later

	recs := s.Finalize()
	if !recs[0].Client.Equal(client) {
		t.Errorf("orientation flipped: Client = %v, want %v", recs[0].Client, client)
	}
}

func TestStreamsDispatchesTLSAndHTTPIndependently(t *testing.T) {
	client := endpoint("10.0.0.1", 51000)
	server := endpoint("10.0.0.2", 443)
	s := New(false, canon.Sorted)

	hello := capture.NewFields()
	hello.Add("tls.handshake.type", "1")
	hello.Add("tls.record.version", "771")
	hello.Add("tls.handshake.ciphersuite", "0x1301")
	s.Update(tcpPacket(1, client, server, 1000, hello))

	req := capture.NewFields()
	req.Add("http.request.method", "GET")
	req.Add("http.request.version", "1.1")
	req.Add("http.request.line", "Host: example.com")
	s.Update(tcpPacket(2, client, server, 2000, req))

	recs := s.Finalize()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1 (same flow)", len(recs))
	}
	if recs[0].JA4 == "" {
		t.Error("expected a JA4 fingerprint from the ClientHello packet")
	}
	if len(recs[0].JA4H) != 1 {
		t.Errorf("expected exactly one JA4H fingerprint, got %d", len(recs[0].JA4H))
	}
}

func TestStreamsFlowWithNoTLSOmitsJA4(t *testing.T) {
	client := endpoint("10.0.0.1", 51000)
	server := endpoint("10.0.0.2", 80)
	s := New(false, canon.Sorted)

	req := capture.NewFields()
	req.Add("http.request.method", "GET")
	s.Update(tcpPacket(1, client, server, 1000, req))

	recs := s.Finalize()
	if recs[0].JA4 != "" {
		t.Errorf("JA4 = %q, want empty for a flow with no TLS", recs[0].JA4)
	}
}

func TestStreamsOutputOrderMatchesFirstSeen(t *testing.T) {
	s := New(false, canon.Sorted)

	a := endpoint("10.0.0.1", 1111)
	b := endpoint("10.0.0.2", 2222)
	c := endpoint("10.0.0.3", 3333)
	d := endpoint("10.0.0.4", 4444)

	f1 := capture.NewFields()
	f1.Add("tcp.flags.syn", "1")
	s.Update(tcpPacket(1, c, d, 100, f1))

	f2 := capture.NewFields()
	f2.Add("tcp.flags.syn", "1")
	s.Update(tcpPacket(2, a, b, 200, f2))

	recs := s.Finalize()
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if !recs[0].Client.Equal(c) {
		t.Errorf("first record's client = %v, want %v (first-seen flow)", recs[0].Client, c)
	}
	if !recs[1].Client.Equal(a) {
		t.Errorf("second record's client = %v, want %v", recs[1].Client, a)
	}
}
