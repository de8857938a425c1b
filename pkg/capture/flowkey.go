package capture

import "strings"

// Sender identifies which side of a flow sent a given packet.
type Sender int

const (
	Client Sender = iota
	Server
)

func (s Sender) String() string {
	if s == Server {
		return "server"
	}
	return "client"
}

// FlowKey is the unordered pair of endpoints plus transport that groups
// packets into a single flow: two packets with swapped src/dst share a key.
type FlowKey struct {
	a, b      Endpoint
	Transport Transport
}

// NewFlowKey builds the symmetric key for a packet's two endpoints,
// canonicalizing the (a, b) ordering so that swapped src/dst produce an
// identical key.
func NewFlowKey(src, dst Endpoint, transport Transport) FlowKey {
	if endpointLess(dst, src) {
		src, dst = dst, src
	}
	return FlowKey{a: src, b: dst, Transport: transport}
}

func endpointLess(a, b Endpoint) bool {
	if c := strings.Compare(a.Addr.String(), b.Addr.String()); c != 0 {
		return c < 0
	}
	return a.Port < b.Port
}

// String renders a FlowKey for logging and map debugging.
func (k FlowKey) String() string {
	return k.a.String() + "<->" + k.b.String() + "/" + k.Transport.String()
}
