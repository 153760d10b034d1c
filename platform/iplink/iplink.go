// Package iplink is a minimal reference stand-in for the two external
// collaborators spec §1 explicitly excludes: IPv6 header parsing and
// 6LoWPAN fragmentation. Neither the teacher nor the rest of the example
// pack carries a 6LoWPAN implementation, so this is built directly on
// net.IP's IPv6 address layout rather than grounded on pack code; it exists
// only so cmd/meshrouterd has something to hand the mesh package's
// AddressResolver and Fragmenter ports, not as a complete 6LoWPAN stack.
package iplink

import (
	"fmt"
	"net"

	"github.com/otmesh/meshrouter/mesh"
)

// Resolver derives MAC addressing facts from a message's IPv6 header bytes,
// implementing mesh.AddressResolver. It assumes Message.Payload begins with
// a full IPv6 header, which is the shape the (out-of-scope) IP layer would
// have hand it to the indirect sender.
type Resolver struct {
	localExt [8]byte
}

// NewResolver builds a Resolver that reports localExt as the extended
// source address to derive from when the source is this router itself.
func NewResolver(localExt [8]byte) *Resolver {
	return &Resolver{localExt: localExt}
}

func ipv6Header(msg *mesh.Message) (src, dst net.IP, ok bool) {
	if len(msg.Payload) < 40 {
		return nil, nil, false
	}
	return net.IP(msg.Payload[8:24]), net.IP(msg.Payload[24:40]), true
}

// MacSourceAddress implements mesh.AddressResolver.
func (r *Resolver) MacSourceAddress(msg *mesh.Message) mesh.Address {
	return mesh.ExtendedAddress(r.localExt)
}

// LinkLocalMacDestination implements mesh.AddressResolver: it returns the
// EUI-64 embedded in the IPv6 destination's interface identifier when that
// destination is link-local (fe80::/10), per the standard IID-from-EUI64
// rule (the universal/local bit flipped, per RFC 4291 appendix A).
func (r *Resolver) LinkLocalMacDestination(msg *mesh.Message) (mesh.Address, bool) {
	_, dst, ok := ipv6Header(msg)
	if !ok || !dst.IsLinkLocalUnicast() {
		return mesh.Address{}, false
	}

	var ext [8]byte
	copy(ext[:], dst[8:16])
	ext[0] ^= 0x02

	return mesh.ExtendedAddress(ext), true
}

// Fragmenter is a minimal reference mesh.Fragmenter: rather than performing
// real 6LoWPAN compression and fragmentation, it copies as much of the
// remaining message as fits in one frame, unchanged. A production border
// router's 6LoWPAN layer (out of scope, spec §1) replaces this entirely.
type Fragmenter struct {
	// MaxPayload bounds how many bytes of a message one frame carries.
	MaxPayload int
}

// NewFragmenter returns a Fragmenter bounding frames to maxPayload bytes.
func NewFragmenter(maxPayload int) *Fragmenter {
	return &Fragmenter{MaxPayload: maxPayload}
}

// PrepareDataFrame implements mesh.Fragmenter.
func (f *Fragmenter) PrepareDataFrame(frame *mesh.Frame, msg *mesh.Message, macSrc, macDst mesh.Address) (int, error) {
	if msg.Offset < 0 || msg.Offset > msg.Length() {
		return 0, fmt.Errorf("iplink: offset %d out of range for message of length %d", msg.Offset, msg.Length())
	}

	end := msg.Offset + f.MaxPayload
	if end > msg.Length() {
		end = msg.Length()
	}
	chunk := msg.Payload[msg.Offset:end]

	frame.InitMacHeader(0, mesh.KeyIDMode1)
	frame.SetDstAddr(macDst)
	frame.SetSrcAddr(macSrc)
	frame.SetPayloadLength(len(chunk))
	copy(frame.Payload, chunk)

	return end, nil
}
