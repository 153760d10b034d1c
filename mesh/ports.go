package mesh

// MacPort is this node's own MAC-layer identity, consumed when building
// frames (spec §6 "Mac.ShortAddress, Mac.ExtAddress, Mac.PanId").
type MacPort interface {
	ShortAddress() uint16
	ExtAddress() [8]byte
	PanID() uint16
	// ShortAddressValid reports whether ShortAddress() is currently
	// assigned (while this node has no RLOC16, empty frames use
	// extended-address source addressing, per PrepareEmptyFrame in the
	// original core).
	ShortAddressValid() bool
}

// SourceMatchRadio is the hardware source-match table (spec §6 "Radio
// source-match hardware"). SourceMatchController is the only caller.
type SourceMatchRadio interface {
	AddShort(addr uint16) error
	AddExtended(addr [8]byte) error
	ClearShort(addr uint16) error
	ClearExtended(addr [8]byte) error
	Enable()
	Disable()
}

// Fragmenter is the (external, out-of-scope) 6LoWPAN fragmenter (spec §6
// "Consumed from 6LoWPAN"). It reads aMessage starting at the indirect
// fragment offset already set on it via Message.Offset and returns the
// offset of the next unsent byte, or the message length when done.
type Fragmenter interface {
	PrepareDataFrame(frame *Frame, msg *Message, macSrc, macDst Address) (nextOffset int, err error)
}

// AddressResolver supplies the IPv6-header-derived facts the indirect
// sender needs without itself parsing IPv6 (spec §1 "IPv6 header parsing"
// is out of scope; spec §4.3.4 "destination MAC is derived from the IPv6
// destination" when it is link-local).
type AddressResolver interface {
	// MacSourceAddress is this router's MAC address to use as the frame
	// source, derived from the IPv6 source address of msg.
	MacSourceAddress(msg *Message) Address

	// LinkLocalMacDestination returns the MAC destination derived from
	// msg's IPv6 destination, and true, only when that destination is
	// link-local. Otherwise ok is false and the child's own address
	// should be used instead.
	LinkLocalMacDestination(msg *Message) (addr Address, ok bool)
}
