package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const childC0 ChildIndex = 0

func TestScenario1_SingleMessageDelivered(t *testing.T) {
	h := newHarness(4, 200, nil, childC0)

	m1 := NewMessage(TypeIP6, make([]byte, 60), 4)
	h.queue.Enqueue(m1)
	err := h.sender.AddMessageForSleepyChild(m1, childC0)
	assert.NoError(t, err)

	h.poll(childC0)

	assert.False(t, h.transmitter.lastFrame.FramePending)
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, 0, h.table.state(childC0).IndirectMessageCount())
	assert.False(t, m1.IsChildPending())
	assert.Len(t, h.radio.shorts, 0)
	assert.Len(t, h.radio.exts, 0)
}

func TestScenario2_FragmentedAcrossThreePolls(t *testing.T) {
	h := newHarness(4, 80, nil, childC0)

	payload := make([]byte, 200)
	m1 := NewMessage(TypeIP6, payload, 4)
	h.queue.Enqueue(m1)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))

	var offsets []int
	for i := 0; i < 3; i++ {
		before := h.table.state(childC0).fragmentOffset
		offsets = append(offsets, int(before))
		h.poll(childC0)
		assert.False(t, h.transmitter.lastFrame.FramePending, "queuedCount==1 throughout: frame-pending must stay clear")
	}

	assert.Equal(t, []int{0, 80, 160}, offsets)
	assert.False(t, m1.IsChildPending())
	assert.Equal(t, 0, h.queue.Len())
}

func TestScenario3_SecondMessageQueuedSetsFramePending(t *testing.T) {
	h := newHarness(4, 200, nil, childC0)

	m1 := NewMessage(TypeIP6, make([]byte, 10), 4)
	m2 := NewMessage(TypeIP6, make([]byte, 10), 4)
	h.queue.Enqueue(m1)
	h.queue.Enqueue(m2)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m2, childC0))

	assert.Equal(t, m1, h.table.state(childC0).currentMessage)

	h.sender.DataPoll().HandleNewFrame(childC0)
	frame := &Frame{}
	assert.NoError(t, h.sender.PrepareFrameForChild(frame, childC0))
	assert.True(t, frame.FramePending, "a second message is queued: Frame-Pending must be set")

	h.sender.HandleSentFrameToChild(frame, nil, childC0)

	assert.Equal(t, m2, h.table.state(childC0).currentMessage)

	h.sender.DataPoll().HandleNewFrame(childC0)
	frame2 := &Frame{}
	assert.NoError(t, h.sender.PrepareFrameForChild(frame2, childC0))
	assert.False(t, frame2.FramePending, "only m2 remains: Frame-Pending must clear")
}

func TestScenario4_SupervisionCoalescing(t *testing.T) {
	h := newHarness(4, 200, nil, childC0)

	sup := NewMessage(TypeSupervision, nil, 4)
	m1 := NewMessage(TypeIP6, make([]byte, 10), 4)
	h.queue.Enqueue(sup)
	h.queue.Enqueue(m1)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(sup, childC0))
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))

	h.poll(childC0)

	assert.False(t, sup.IsChildPending(), "supervision message must be dropped ahead of real traffic")
	assert.Equal(t, 0, h.queue.Len(), "sup was coalesced away and m1 fully delivered in one poll")
}

func TestScenario5_ReplaceMidFlight(t *testing.T) {
	cfg := Config{MaxChildren: 4, DropMessageOnFragmentTxFailure: true, SupervisionMsgAckRequest: true}
	table := NewChildTable(4)
	queue := &SendQueue{}
	children := newFakeChildren(childC0)
	radio := newFakeRadio(4)
	mac := &fakeMac{short: 0x2000, shortValid: true, panID: 0xface}
	forward := &fakeForward{}
	counters := &fakeCounters{}
	transmitter := &manualTransmitter{}

	sender := NewIndirectSender(cfg, table, queue, children, mac, fakeResolver{}, &fakeFragmenter{chunkSize: 200}, radio, transmitter, forward, counters, InlineScheduler{}, testLogger())
	transmitter.handler = sender.DataPoll()
	sender.Start()

	m1 := NewMessage(TypeIP6, make([]byte, 10), 4)
	queue.Enqueue(m1)
	assert.NoError(t, sender.AddMessageForSleepyChild(m1, childC0))

	// C0 polls: a frame for m1 is prepared and handed to the MAC, but the
	// transmission does not resolve yet (manualTransmitter never calls
	// HandleTransmitDone on its own).
	sender.DataPoll().HandleDataPoll(childC0)
	assert.NotNil(t, transmitter.lastFrame)

	// Before tx-complete, the upper layer withdraws m1 for this child.
	assert.NoError(t, sender.RemoveMessageFromSleepyChild(m1, childC0))
	assert.Nil(t, table.state(childC0).currentMessage, "current message is nulled as soon as its bit clears")
	assert.True(t, table.state(childC0).waitingForUpdate, "purge is outstanding until the in-flight frame resolves")

	// Now the in-flight frame's tx-complete arrives.
	sender.DataPoll().HandleTransmitDone(childC0, transmitter.lastFrame, nil)

	assert.Nil(t, table.state(childC0).currentMessage)
	assert.False(t, table.state(childC0).waitingForUpdate)
	assert.False(t, m1.IsChildPending(), "no other child held m1")
}

func TestScenario6_TxFailureDropPolicyRetiresMessage(t *testing.T) {
	h := newHarness(4, 80, ErrNoAck, childC0)

	payload := make([]byte, 200)
	m1 := NewMessage(TypeIP6, payload, 4)
	h.queue.Enqueue(m1)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))

	h.poll(childC0)

	assert.False(t, m1.IsChildPending(), "drop policy retires the message on the first failed fragment")
	assert.Equal(t, 0, h.queue.Len())
	assert.Equal(t, 1, h.counters.failure)
	assert.Equal(t, 0, h.counters.success)
}

func TestSweepRemovedChildren_ClearsDepartedChildOnAnyCompletion(t *testing.T) {
	h := newHarness(4, 200, nil, childC0, ChildIndex(1))

	m1 := NewMessage(TypeIP6, make([]byte, 5), 4)
	h.queue.Enqueue(m1)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))
	h.children.markRemoved(childC0)

	m2 := NewMessage(TypeIP6, make([]byte, 5), 4)
	h.queue.Enqueue(m2)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m2, ChildIndex(1)))

	// Completing an unrelated child's poll triggers the sweep, which must
	// pick up c0's orphaned message even though nothing polled c0 itself.
	h.poll(ChildIndex(1))

	assert.False(t, m1.IsChildPending(), "departed child's message must be cleared by the sweep")
	assert.Equal(t, 0, h.table.state(childC0).IndirectMessageCount())
	assert.Equal(t, 0, h.queue.Len())
}

func TestSourceMatchOverflowAndPromotion(t *testing.T) {
	h := newHarness(2, 200, nil, ChildIndex(0), ChildIndex(1))

	m0 := NewMessage(TypeIP6, make([]byte, 5), 2)
	m1 := NewMessage(TypeIP6, make([]byte, 5), 2)

	h.radio.capacity = 1

	assert.NoError(t, h.sender.AddMessageForSleepyChild(m0, ChildIndex(0)))
	assert.Len(t, h.radio.exts, 1)

	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, ChildIndex(1)))
	assert.True(t, h.table.state(ChildIndex(1)).sourceMatchPending)
	assert.False(t, h.radio.enabled, "table must globally disable once full")

	assert.NoError(t, h.sender.RemoveMessageFromSleepyChild(m0, ChildIndex(0)))
	assert.False(t, h.table.state(ChildIndex(1)).sourceMatchPending, "pending child must be promoted once a slot frees")
	assert.True(t, h.radio.enabled, "table re-enables once nothing remains pending")
}

func TestAddMessageForSleepyChild_RejectsRxOnWhenIdle(t *testing.T) {
	h := newHarness(2, 200, nil, childC0)
	h.children.rxOnWhenIdle[childC0] = true

	m1 := NewMessage(TypeIP6, make([]byte, 5), 2)
	err := h.sender.AddMessageForSleepyChild(m1, childC0)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAddMessageForSleepyChild_RejectsDuplicate(t *testing.T) {
	h := newHarness(2, 200, nil, childC0)

	m1 := NewMessage(TypeIP6, make([]byte, 5), 2)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))
	assert.ErrorIs(t, h.sender.AddMessageForSleepyChild(m1, childC0), ErrAlready)
}

func TestRemoveMessageFromSleepyChild_RejectsMissing(t *testing.T) {
	h := newHarness(2, 200, nil, childC0)

	m1 := NewMessage(TypeIP6, make([]byte, 5), 2)
	assert.ErrorIs(t, h.sender.RemoveMessageFromSleepyChild(m1, childC0), ErrNotFound)
}

func TestClearAllMessagesForSleepyChild_IsIdempotent(t *testing.T) {
	h := newHarness(2, 200, nil, childC0)

	m1 := NewMessage(TypeIP6, make([]byte, 5), 2)
	h.queue.Enqueue(m1)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))

	h.sender.ClearAllMessagesForSleepyChild(childC0)
	firstQueueLen := h.queue.Len()
	firstCount := h.table.state(childC0).IndirectMessageCount()

	h.sender.ClearAllMessagesForSleepyChild(childC0)

	assert.Equal(t, firstQueueLen, h.queue.Len())
	assert.Equal(t, firstCount, h.table.state(childC0).IndirectMessageCount())
}

func TestFragmentOffsetSaturatesAt14Bits(t *testing.T) {
	st := &ChildIndirectState{}
	assert.Panics(t, func() { st.setFragmentOffset(MaxFragmentOffset + 1) })
	assert.NotPanics(t, func() { st.setFragmentOffset(MaxFragmentOffset) })
}

func TestPrepareFrameForChild_UnknownTypePanics(t *testing.T) {
	h := newHarness(2, 200, nil, childC0)

	m1 := NewMessage(MessageType(99), make([]byte, 5), 2)
	h.table.state(childC0).currentMessage = m1

	assert.Panics(t, func() {
		_ = h.sender.PrepareFrameForChild(&Frame{}, childC0)
	})
}

func TestStop_ClearsEveryChild(t *testing.T) {
	h := newHarness(2, 200, nil, childC0)

	m1 := NewMessage(TypeIP6, make([]byte, 5), 2)
	h.queue.Enqueue(m1)
	assert.NoError(t, h.sender.AddMessageForSleepyChild(m1, childC0))

	h.sender.Stop()

	assert.Nil(t, h.table.state(childC0).currentMessage)
	assert.Equal(t, 0, h.table.state(childC0).IndirectMessageCount())

	h.sender.Start()
}

func TestPrepareFrameForChild_AbortsWhenStopped(t *testing.T) {
	h := newHarness(2, 200, nil, childC0)
	h.sender.Stop()

	err := h.sender.PrepareFrameForChild(&Frame{}, childC0)
	assert.ErrorIs(t, err, ErrAbort)
}
