package mesh

// Frame control field bits, per IEEE 802.15.4-2006 (spec §6 "Wire format").
// Only the subset the indirect sender sets is named.
const (
	fcfFrameTypeData    uint16 = 0x0001
	fcfSecurityEnabled  uint16 = 0x0008
	fcfFramePending     uint16 = 0x0010
	fcfAckRequest       uint16 = 0x0020
	fcfPanIDCompression uint16 = 0x0040
	fcfDstAddrShort     uint16 = 0x2 << 10
	fcfDstAddrExt       uint16 = 0x3 << 10
	fcfSrcAddrShort     uint16 = 0x2 << 14
	fcfSrcAddrExt       uint16 = 0x3 << 14
	fcfFrameVersion2006 uint16 = 0x1 << 12
)

// KeyIDMode1 and SecLevelMIC32 identify the auxiliary security header mode
// every outgoing indirect frame uses (spec §6).
const (
	KeyIDMode1    uint8 = 1
	SecLevelMIC32 uint8 = 5
)

// Address is a MAC-layer address in either short (RLOC16) or extended
// (EUI-64) form.
type Address struct {
	Short    uint16
	Extended [8]byte
	IsShort  bool
}

// ShortAddress builds a short-form address.
func ShortAddress(addr uint16) Address { return Address{Short: addr, IsShort: true} }

// ExtendedAddress builds an extended-form address.
func ExtendedAddress(addr [8]byte) Address { return Address{Extended: addr} }

// Frame is the outgoing 802.15.4 data frame the indirect sender builds for
// a data-poll response. It corresponds to the original core's Mac::Frame
// builder (spec §6), collapsed into one concrete struct since, unlike the
// radio/fragmenter, nothing here needs to vary by backend.
type Frame struct {
	FrameControl uint16
	KeyIDMode    uint8
	SecLevel     uint8
	DstPanID     uint16
	SrcPanID     uint16
	Dst          Address
	Src          Address
	Payload      []byte
	FramePending bool
}

// InitMacHeader sets the frame-control field and security parameters,
// mirroring Mac::Frame::InitMacHeader.
func (f *Frame) InitMacHeader(fcf uint16, keyIDMode uint8) {
	f.FrameControl = fcf
	f.KeyIDMode = keyIDMode
	f.SecLevel = SecLevelMIC32
}

// SetDstPanId sets the destination PAN ID.
func (f *Frame) SetDstPanId(panID uint16) { f.DstPanID = panID }

// SetSrcPanId sets the source PAN ID.
func (f *Frame) SetSrcPanId(panID uint16) { f.SrcPanID = panID }

// SetDstAddr sets the destination MAC address.
func (f *Frame) SetDstAddr(addr Address) { f.Dst = addr }

// SetSrcAddr sets the source MAC address.
func (f *Frame) SetSrcAddr(addr Address) { f.Src = addr }

// SetPayloadLength truncates/grows Payload to n bytes of capacity; the
// fragmenter fills it in. A zero length marks an empty supervision or
// "nothing queued" frame.
func (f *Frame) SetPayloadLength(n int) {
	if cap(f.Payload) >= n {
		f.Payload = f.Payload[:n]
		return
	}
	f.Payload = make([]byte, n)
}

// SetFramePending sets or clears the Frame Pending bit.
func (f *Frame) SetFramePending(pending bool) {
	f.FramePending = pending
	if pending {
		f.FrameControl |= fcfFramePending
	} else {
		f.FrameControl &^= fcfFramePending
	}
}

// GetDstAddr returns the destination MAC address.
func (f *Frame) GetDstAddr() Address { return f.Dst }

// buildFrameControl assembles the frame-control field for a frame of the
// given addressing modes and ack-request setting, matching
// IndirectSender::PrepareEmptyFrame's fcf construction in the original
// core.
func buildFrameControl(ackRequest bool, dst, src Address) uint16 {
	fcf := fcfFrameTypeData | fcfFrameVersion2006 | fcfPanIDCompression | fcfSecurityEnabled
	if ackRequest {
		fcf |= fcfAckRequest
	}
	if dst.IsShort {
		fcf |= fcfDstAddrShort
	} else {
		fcf |= fcfDstAddrExt
	}
	if src.IsShort {
		fcf |= fcfSrcAddrShort
	} else {
		fcf |= fcfSrcAddrExt
	}
	return fcf
}
