// Package neighbors is a reference child/neighbor table: the real Thread
// neighbor table, MLE state machine, and link-quality tracker are out of
// scope (spec §1, "the child/neighbor table itself"), so this provides just
// enough bookkeeping to let cmd/meshrouterd run end to end against the
// mesh.ChildProvider contract. Grounded on the teacher's src/mheard.go,
// which keeps a mutex-protected map of heard stations keyed by address and
// records last-heard times the same way RecordSentFrame does here.
package neighbors

import (
	"sync"
	"time"

	"github.com/otmesh/meshrouter/mesh"
)

type entry struct {
	rxOnWhenIdle bool
	short        uint16
	ext          [8]byte
	removed      bool
	lastHeard    time.Time
	txSuccess    int
	txFailure    int
}

// Table is an in-memory mesh.ChildProvider keyed by child slot.
type Table struct {
	mu      sync.Mutex
	entries map[mesh.ChildIndex]*entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[mesh.ChildIndex]*entry)}
}

// Attach registers child as present, with the given addresses and sleep
// behavior. Calling it again replaces the prior record.
func (t *Table) Attach(child mesh.ChildIndex, short uint16, ext [8]byte, rxOnWhenIdle bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[child] = &entry{rxOnWhenIdle: rxOnWhenIdle, short: short, ext: ext}
}

// Detach marks child as having left the mesh, so a subsequent Iterate over
// FilterAnyExceptValidOrRestoring will surface it for the removed-children
// sweep until the caller removes it outright with Remove.
func (t *Table) Detach(child mesh.ChildIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[child]; ok {
		e.removed = true
	}
}

// Remove deletes child's record outright.
func (t *Table) Remove(child mesh.ChildIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, child)
}

func (t *Table) IsRxOnWhenIdle(child mesh.ChildIndex) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[child]; ok {
		return e.rxOnWhenIdle
	}
	return false
}

func (t *Table) ShortAddress(child mesh.ChildIndex) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[child]; ok {
		return e.short
	}
	return 0
}

func (t *Table) ExtAddress(child mesh.ChildIndex) [8]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[child]; ok {
		return e.ext
	}
	return [8]byte{}
}

func (t *Table) RecordMessageTxStatus(child mesh.ChildIndex, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[child]
	if !ok {
		return
	}
	if success {
		e.txSuccess++
	} else {
		e.txFailure++
	}
}

func (t *Table) RecordSentFrame(child mesh.ChildIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[child]; ok {
		e.lastHeard = time.Now()
	}
}

// Iterate returns every attached child matching filter, in ascending slot
// order so sweeps and promotions are deterministic (spec §4.3.5 step 8
// depends on a stable order).
func (t *Table) Iterate(filter mesh.StateFilter) []mesh.ChildIndex {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []mesh.ChildIndex
	for child, e := range t.entries {
		switch filter {
		case mesh.FilterAnyExceptInvalid:
			out = append(out, child)
		case mesh.FilterAnyExceptValidOrRestoring:
			if e.removed {
				out = append(out, child)
			}
		}
	}
	sortChildIndices(out)
	return out
}

func sortChildIndices(s []mesh.ChildIndex) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
