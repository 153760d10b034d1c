package mesh

// MaxFragmentOffset is the largest value the 14-bit fragment-offset field
// can hold (spec §3, §8 "Fragment-offset field saturates at 14 bits").
const MaxFragmentOffset = 1<<14 - 1

// MaxQueuedCount is the largest value the 14-bit queued-message-count field
// can hold. NewChildTable rejects a MaxChildren above this value; callers
// should keep MaxChildren well under it (spec §6: "the
// source enforces MaxChildren < 2^14").
const MaxQueuedCount = 1<<14 - 1

// ChildIndex identifies a child's slot, 0..MaxChildren-1. It is the value
// the (external) child/neighbor layer's ChildIndex(child) lookup would
// return (spec §6); this module is handed the index directly rather than a
// child object, per the arena-by-slot design in spec §9.
type ChildIndex uint16

// StateFilter selects which children an iteration over the child table
// should visit, mirroring the two ChildTable::Iterator filters the original
// core uses (spec §4.3.6, §4.3.5 step 8).
type StateFilter int

const (
	// FilterAnyExceptInvalid matches every child slot currently in use
	// (used by Stop to reset all per-child indirect state).
	FilterAnyExceptInvalid StateFilter = iota
	// FilterAnyExceptValidOrRestoring matches children that have left
	// the attached/reattaching states (used by the removed-children
	// sweep in HandleSentFrameToChild).
	FilterAnyExceptValidOrRestoring
)

// ChildProvider is everything the indirect sender needs from the (external,
// out-of-scope) child/neighbor table and link-quality tracker, per spec §6
// "Consumed from the child/neighbor layer".
type ChildProvider interface {
	// IsRxOnWhenIdle reports whether the child keeps its receiver on
	// when idle; AddMessageForSleepyChild rejects such children.
	IsRxOnWhenIdle(child ChildIndex) bool

	// ShortAddress is the child's RLOC16.
	ShortAddress(child ChildIndex) uint16

	// ExtAddress is the child's EUI-64.
	ExtAddress(child ChildIndex) [8]byte

	// RecordMessageTxStatus feeds the per-link tx-status tracker
	// (Child.linkInfo.AddMessageTxStatus).
	RecordMessageTxStatus(child ChildIndex, success bool)

	// RecordSentFrame resets the child's inactivity ("keep me awake")
	// timer on a successful send (Utils::ChildSupervisor::UpdateOnSend).
	RecordSentFrame(child ChildIndex)

	// Iterate visits every child slot matching filter, in a stable,
	// deterministic order.
	Iterate(filter StateFilter) []ChildIndex
}

// ChildIndirectState is the per-child indirect-transmission state, held in
// an arena indexed by ChildIndex rather than embedded in an external Child
// object (spec §9 Design Notes: "place per-child indirect state in an array
// indexed by child slot").
type ChildIndirectState struct {
	currentMessage     *Message
	fragmentOffset     uint16
	txSuccessSoFar     bool
	waitingForUpdate   bool
	queuedCount        uint16
	useShortAddress    bool
	sourceMatchPending bool

	// pendingNextOffset carries the fragmenter's "next offset" result
	// from PrepareFrameForChild to HandleSentFrameToChild. Kept per
	// child rather than as the original core's single shared
	// mMessageNextOffset scratch variable (spec §9 Design Notes), since
	// that is only safe under strict per-radio serialization.
	pendingNextOffset int
}

// IndirectMessageCount returns the number of messages queued for this
// child. It is the only field of ChildIndirectState exposed read-only
// outside the package, mirroring ChildInfo::GetIndirectMessageCount.
func (s *ChildIndirectState) IndirectMessageCount() int { return int(s.queuedCount) }

func (s *ChildIndirectState) incrementMessageCount() {
	if s.queuedCount == MaxQueuedCount {
		panic("mesh: queued message count overflow")
	}
	s.queuedCount++
}

func (s *ChildIndirectState) decrementMessageCount() {
	if s.queuedCount == 0 {
		panic("mesh: queued message count underflow")
	}
	s.queuedCount--
}

func (s *ChildIndirectState) resetMessageCount() { s.queuedCount = 0 }

func (s *ChildIndirectState) setFragmentOffset(offset int) {
	if offset < 0 || offset > MaxFragmentOffset {
		panic("mesh: fragment offset out of 14-bit range")
	}
	s.fragmentOffset = uint16(offset)
}

// ChildTable is the fixed-size arena of per-child indirect state, one slot
// per possible child (spec's MaxChildren configuration knob, spec §6).
type ChildTable struct {
	slots []ChildIndirectState
}

// NewChildTable allocates an arena with room for maxChildren slots.
func NewChildTable(maxChildren int) *ChildTable {
	if maxChildren <= 0 || maxChildren > MaxQueuedCount {
		panic("mesh: MaxChildren out of range")
	}
	return &ChildTable{slots: make([]ChildIndirectState, maxChildren)}
}

// MaxChildren reports the arena's configured capacity.
func (t *ChildTable) MaxChildren() int { return len(t.slots) }

func (t *ChildTable) state(child ChildIndex) *ChildIndirectState {
	return &t.slots[child]
}

// State returns the per-child indirect state for read-only inspection
// (tests, diagnostics, metrics).
func (t *ChildTable) State(child ChildIndex) ChildIndirectState {
	return t.slots[child]
}
