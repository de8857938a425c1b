// Package latency implements the JA4L-C/JA4L-S (TCP timing) fingerprint
// builder described in spec.md §4.6.
package latency

import (
	"fmt"

	"github.com/netfprint/ja4core/pkg/capture"
)

// handshakeState tracks progress through the three-way TCP handshake.
// Later SYNs are ignored once the state has advanced (spec.md §4.8).
type handshakeState int

const (
	Init handshakeState = iota
	SawClientSyn
	SawServerSynAck
	Complete
)

// Builder accumulates TCP handshake timing for one flow and derives JA4L-C
// (client-observed RTT) and JA4L-S (server-observed RTT) on request.
type Builder struct {
	state handshakeState

	clientSynUs     int64
	serverSynAckUs  int64
	clientAckUs     int64
	clientTTL       int
	serverTTL       int
	sawClientTTL    bool
	sawServerTTL    bool
}

// NewBuilder returns a builder for a new flow.
func NewBuilder() *Builder {
	return &Builder{}
}

// Observe folds one packet's TCP flags, timestamp, sender, and TTL into the
// handshake state machine.
func (b *Builder) Observe(sender capture.Sender, timestampUs int64, ttl int, syn, ack bool) {
	switch b.state {
	case Init:
		if sender == capture.Client && syn && !ack {
			b.clientSynUs = timestampUs
			b.state = SawClientSyn
		}
	case SawClientSyn:
		if sender == capture.Server && syn && ack {
			b.serverSynAckUs = timestampUs
			b.state = SawServerSynAck
		}
	case SawServerSynAck:
		if sender == capture.Client && ack && !syn {
			b.clientAckUs = timestampUs
			b.state = Complete
		}
	case Complete:
		// Handshake already resolved; later SYN/ACK packets are ignored.
	}

	if sender == capture.Client && !b.sawClientTTL {
		b.clientTTL = ttl
		b.sawClientTTL = true
	}
	if sender == capture.Server && !b.sawServerTTL {
		b.serverTTL = ttl
		b.sawServerTTL = true
	}
}

// HasHandshake reports whether the full SYN/SYN-ACK/ACK sequence completed.
func (b *Builder) HasHandshake() bool {
	return b.state == Complete
}

// ClientFingerprint returns JA4L-C: the client-observed RTT (half the
// SYN-ACK to client-ACK interval) and the first client TTL. It returns
// ("", false) if the handshake never completed.
func (b *Builder) ClientFingerprint() (string, bool) {
	if b.state != Complete {
		return "", false
	}
	rtt := (b.clientAckUs - b.serverSynAckUs) / 2
	if rtt < 0 {
		rtt = 0
	}
	return fmt.Sprintf("%d_%d", rtt, b.clientTTL), true
}

// ServerFingerprint returns JA4L-S: the server-observed RTT (half the
// client-SYN to server-SYN-ACK interval) and the first server TTL. It
// returns ("", false) if the handshake never completed.
func (b *Builder) ServerFingerprint() (string, bool) {
	if b.state != Complete {
		return "", false
	}
	rtt := (b.serverSynAckUs - b.clientSynUs) / 2
	if rtt < 0 {
		rtt = 0
	}
	return fmt.Sprintf("%d_%d", rtt, b.serverTTL), true
}
