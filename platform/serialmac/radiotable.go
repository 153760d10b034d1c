// Package serialmac is the reference backend for mesh.SourceMatchRadio,
// mesh.MacPort and mesh.MacTransmitter: a simulated 802.15.4 radio
// co-processor (RCP) reached over a serial line, in the same shape
// OpenThread's POSIX platform drives a real RCP over UART/spinel (see
// original_source/.../src/posix/platform/misc.c).
package serialmac

import "fmt"

// entry identifies one source-match table occupant, by whichever address
// form it was inserted with.
type entry struct {
	short     uint16
	extended  [8]byte
	useShort  bool
}

// RadioTable is an in-memory model of the RCP's hardware source-match
// table, with a configurable capacity so overflow (spec §4.1, §8 "Source-
// match table at exactly capacity") can be exercised deterministically in
// tests and in the daemon.
type RadioTable struct {
	capacity int
	entries  []entry
	enabled  bool
}

// NewRadioTable builds a table with room for capacity children.
func NewRadioTable(capacity int) *RadioTable {
	return &RadioTable{capacity: capacity, enabled: true}
}

func (t *RadioTable) indexOfShort(addr uint16) int {
	for i, e := range t.entries {
		if e.useShort && e.short == addr {
			return i
		}
	}
	return -1
}

func (t *RadioTable) indexOfExtended(addr [8]byte) int {
	for i, e := range t.entries {
		if !e.useShort && e.extended == addr {
			return i
		}
	}
	return -1
}

// AddShort inserts addr in short-address form. Returns an error if the
// table is already at capacity.
func (t *RadioTable) AddShort(addr uint16) error {
	if t.indexOfShort(addr) >= 0 {
		return nil
	}
	if len(t.entries) >= t.capacity {
		return fmt.Errorf("serialmac: source-match table full (capacity %d)", t.capacity)
	}
	t.entries = append(t.entries, entry{short: addr, useShort: true})
	return nil
}

// AddExtended inserts addr in extended-address form.
func (t *RadioTable) AddExtended(addr [8]byte) error {
	if t.indexOfExtended(addr) >= 0 {
		return nil
	}
	if len(t.entries) >= t.capacity {
		return fmt.Errorf("serialmac: source-match table full (capacity %d)", t.capacity)
	}
	t.entries = append(t.entries, entry{extended: addr})
	return nil
}

// ClearShort removes a short-address entry.
func (t *RadioTable) ClearShort(addr uint16) error {
	if i := t.indexOfShort(addr); i >= 0 {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
	}
	return nil
}

// ClearExtended removes an extended-address entry.
func (t *RadioTable) ClearExtended(addr [8]byte) error {
	if i := t.indexOfExtended(addr); i >= 0 {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
	}
	return nil
}

// Enable re-enables per-entry Frame Pending decisions.
func (t *RadioTable) Enable() { t.enabled = true }

// Disable forces Frame Pending on in every ack, the table-overflow fallback
// (spec §4.1).
func (t *RadioTable) Disable() { t.enabled = false }

// Enabled reports the table's current enabled state, consulted by whatever
// builds 802.15.4 acks.
func (t *RadioTable) Enabled() bool { return t.enabled }

// Len reports the number of occupied slots, for diagnostics and tests.
func (t *RadioTable) Len() int { return len(t.entries) }
