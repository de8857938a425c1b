// Package ssh implements the JA4SSH (SSH behavioral) fingerprint builder
// described in spec.md §4.7.
package ssh

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/netfprint/ja4core/pkg/capture"
)

// windowSize is N in spec.md §4.7: a new JA4SSH segment is emitted every
// 200 SSH packets observed after the version exchange.
const windowSize = 200

// window accumulates the payload lengths and reset count for one segment.
type window struct {
	clientLens []float64
	serverLens []float64
	toServer   int
	toClient   int
	resets     int
}

// Builder accumulates SSH packet observations for one flow and emits a
// JA4SSH segment every windowSize packets.
type Builder struct {
	versionExchangeSeen bool
	current             *window
	packetsInWindow     int
	segments            []string
}

// NewBuilder returns a builder for a new flow.
func NewBuilder() *Builder {
	return &Builder{current: &window{}}
}

// ObserveVersion marks the SSH version-exchange banner as seen; packet
// counting toward the first window only starts afterward.
func (b *Builder) ObserveVersion() {
	b.versionExchangeSeen = true
}

// ObservePacket folds one SSH packet's payload length (MAC excluded) into
// the current window, closing and emitting it once windowSize is reached.
func (b *Builder) ObservePacket(sender capture.Sender, payloadLen int) {
	if !b.versionExchangeSeen {
		return
	}

	switch sender {
	case capture.Client:
		b.current.clientLens = append(b.current.clientLens, float64(payloadLen))
		b.current.toServer++
	case capture.Server:
		b.current.serverLens = append(b.current.serverLens, float64(payloadLen))
		b.current.toClient++
	}

	b.packetsInWindow++
	if b.packetsInWindow == windowSize {
		b.closeWindow()
	}
}

// ObserveReset records a TCP reset against the window currently open.
func (b *Builder) ObserveReset() {
	b.current.resets++
}

// Finalize closes any partially-filled trailing window, per spec.md §8's
// ceil(total/200) segment-count invariant.
func (b *Builder) Finalize() {
	if b.packetsInWindow > 0 {
		b.closeWindow()
	}
}

func (b *Builder) closeWindow() {
	w := b.current
	modalClient := mode(w.clientLens)
	modalServer := mode(w.serverLens)
	b.segments = append(b.segments, fmt.Sprintf("c%ds%d_%d_%d_%d",
		modalClient, modalServer, w.toServer, w.toClient, w.resets))

	b.current = &window{}
	b.packetsInWindow = 0
}

// Segments returns the JA4SSH strings in window order.
func (b *Builder) Segments() []string {
	return b.segments
}

// mode returns the smallest modal value of lens, or 0 for an empty window.
// stats.Mode can return several equally frequent values; JA4SSH needs one,
// so ties are broken by taking the smallest, matching the reference
// behavior of picking a single deterministic modal length.
func mode(lens []float64) int {
	if len(lens) == 0 {
		return 0
	}
	modes, err := stats.Mode(stats.Float64Data(lens))
	if err != nil || len(modes) == 0 {
		return int(lens[0])
	}
	smallest := modes[0]
	for _, m := range modes[1:] {
		if m < smallest {
			smallest = m
		}
	}
	return int(smallest)
}
