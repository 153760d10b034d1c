package serialmac

// Identity is this router's own MAC-layer address, implementing
// mesh.MacPort.
type Identity struct {
	shortAddr  uint16
	shortValid bool
	extAddr    [8]byte
	panID      uint16
}

// NewIdentity builds a MacPort with the given extended address and PAN ID.
// The short address is assigned later, once the router attaches and is
// given an RLOC16, via SetShortAddress.
func NewIdentity(extAddr [8]byte, panID uint16) *Identity {
	return &Identity{extAddr: extAddr, panID: panID}
}

// SetShortAddress assigns (or re-assigns) the router's RLOC16.
func (id *Identity) SetShortAddress(addr uint16) {
	id.shortAddr = addr
	id.shortValid = true
}

// ShortAddress implements mesh.MacPort.
func (id *Identity) ShortAddress() uint16 { return id.shortAddr }

// ExtAddress implements mesh.MacPort.
func (id *Identity) ExtAddress() [8]byte { return id.extAddr }

// PanID implements mesh.MacPort.
func (id *Identity) PanID() uint16 { return id.panID }

// ShortAddressValid implements mesh.MacPort.
func (id *Identity) ShortAddressValid() bool { return id.shortValid }
