package mesh

import (
	"io"

	"github.com/charmbracelet/log"
)

// fakeChildren is a mesh.ChildProvider test double: every child is sleepy
// (rxOnWhenIdle=false) unless marked otherwise, and addresses are derived
// deterministically from the child index.
type fakeChildren struct {
	rxOnWhenIdle map[ChildIndex]bool
	order        []ChildIndex
	removed      map[ChildIndex]bool
	txStatus     map[ChildIndex][]bool
	sentFrames   map[ChildIndex]int
}

func newFakeChildren(children ...ChildIndex) *fakeChildren {
	f := &fakeChildren{
		rxOnWhenIdle: make(map[ChildIndex]bool),
		order:        append([]ChildIndex{}, children...),
		removed:      make(map[ChildIndex]bool),
		txStatus:     make(map[ChildIndex][]bool),
		sentFrames:   make(map[ChildIndex]int),
	}
	return f
}

func (f *fakeChildren) IsRxOnWhenIdle(child ChildIndex) bool { return f.rxOnWhenIdle[child] }
func (f *fakeChildren) ShortAddress(child ChildIndex) uint16 { return uint16(child) + 1 }
func (f *fakeChildren) ExtAddress(child ChildIndex) [8]byte {
	var a [8]byte
	a[7] = byte(child) + 1
	return a
}
func (f *fakeChildren) RecordMessageTxStatus(child ChildIndex, success bool) {
	f.txStatus[child] = append(f.txStatus[child], success)
}
func (f *fakeChildren) RecordSentFrame(child ChildIndex) { f.sentFrames[child]++ }
func (f *fakeChildren) Iterate(filter StateFilter) []ChildIndex {
	var out []ChildIndex
	for _, child := range f.order {
		switch filter {
		case FilterAnyExceptValidOrRestoring:
			if f.removed[child] {
				out = append(out, child)
			}
		default:
			if !f.removed[child] {
				out = append(out, child)
			}
		}
	}
	return out
}

// markRemoved marks child as having left the network, so the next
// FilterAnyExceptValidOrRestoring sweep picks it up.
func (f *fakeChildren) markRemoved(child ChildIndex) { f.removed[child] = true }

// fakeRadio is an in-memory mesh.SourceMatchRadio with a configurable
// capacity, to exercise the overflow/promote path.
type fakeRadio struct {
	capacity int
	shorts   map[uint16]bool
	exts     map[[8]byte]bool
	enabled  bool
}

func newFakeRadio(capacity int) *fakeRadio {
	return &fakeRadio{
		capacity: capacity,
		shorts:   make(map[uint16]bool),
		exts:     make(map[[8]byte]bool),
		enabled:  true,
	}
}

func (r *fakeRadio) count() int { return len(r.shorts) + len(r.exts) }

func (r *fakeRadio) AddShort(addr uint16) error {
	if r.count() >= r.capacity {
		return ErrFailed
	}
	r.shorts[addr] = true
	return nil
}
func (r *fakeRadio) AddExtended(addr [8]byte) error {
	if r.count() >= r.capacity {
		return ErrFailed
	}
	r.exts[addr] = true
	return nil
}
func (r *fakeRadio) ClearShort(addr uint16) error    { delete(r.shorts, addr); return nil }
func (r *fakeRadio) ClearExtended(addr [8]byte) error { delete(r.exts, addr); return nil }
func (r *fakeRadio) Enable()                         { r.enabled = true }
func (r *fakeRadio) Disable()                        { r.enabled = false }

// fakeMac is a fixed mesh.MacPort identity.
type fakeMac struct {
	short      uint16
	shortValid bool
	ext        [8]byte
	panID      uint16
}

func (m *fakeMac) ShortAddress() uint16    { return m.short }
func (m *fakeMac) ExtAddress() [8]byte     { return m.ext }
func (m *fakeMac) PanID() uint16           { return m.panID }
func (m *fakeMac) ShortAddressValid() bool { return m.shortValid }

// fakeResolver never identifies a link-local destination, forcing the
// sender to fall back to the child's own address — the common case in
// these tests.
type fakeResolver struct{}

func (fakeResolver) MacSourceAddress(msg *Message) Address        { return ShortAddress(0x1000) }
func (fakeResolver) LinkLocalMacDestination(msg *Message) (Address, bool) { return Address{}, false }

// fakeFragmenter splits a message's payload into chunkSize-byte frames,
// standing in for the (out-of-scope) 6LoWPAN fragmenter.
type fakeFragmenter struct {
	chunkSize int
}

func (f *fakeFragmenter) PrepareDataFrame(frame *Frame, msg *Message, macSrc, macDst Address) (int, error) {
	end := msg.Offset + f.chunkSize
	if end > msg.Length() {
		end = msg.Length()
	}
	frame.InitMacHeader(0, KeyIDMode1)
	frame.SetDstAddr(macDst)
	frame.SetSrcAddr(macSrc)
	frame.SetPayloadLength(end - msg.Offset)
	copy(frame.Payload, msg.Payload[msg.Offset:end])
	return end, nil
}

// fakeTransmitter hands frames straight back to a DataPollHandler's
// HandleTransmitDone with a scripted outcome, synchronously — tests drive
// the scheduler themselves so ordering stays deterministic.
type fakeTransmitter struct {
	handler   *DataPollHandler
	outcome   error
	lastFrame *Frame
}

func (t *fakeTransmitter) Send(frame *Frame, child ChildIndex) {
	t.lastFrame = frame
	t.handler.HandleTransmitDone(child, frame, t.outcome)
}

// manualTransmitter records the frame handed to it without resolving the
// transmission, so a test can control exactly when HandleTransmitDone fires
// (simulating a tx-complete event arriving after some other state change).
type manualTransmitter struct {
	handler   *DataPollHandler
	lastFrame *Frame
	lastChild ChildIndex
}

func (t *manualTransmitter) Send(frame *Frame, child ChildIndex) {
	t.lastFrame = frame
	t.lastChild = child
}

// fakeForward is a no-op mesh.DirectSendTracker.
type fakeForward struct {
	current *Message
}

func (f *fakeForward) CurrentDirectMessage() *Message { return f.current }
func (f *fakeForward) ClearCurrentDirectMessage()     { f.current = nil }

// fakeCounters records IP tx success/failure counts.
type fakeCounters struct {
	success int
	failure int
}

func (c *fakeCounters) IPTxSuccess() { c.success++ }
func (c *fakeCounters) IPTxFailure() { c.failure++ }

// fakeObserver is a mesh.PollObserver test double recording every call it
// receives, in order.
type fakeObserver struct {
	polls    []ChildIndex
	outcomes []error
}

func (o *fakeObserver) RecordPoll(child ChildIndex)               { o.polls = append(o.polls, child) }
func (o *fakeObserver) RecordOutcome(child ChildIndex, err error) { o.outcomes = append(o.outcomes, err) }

// testLogger is a discard logger so tests don't spam output.
func testLogger() *log.Logger {
	l := log.New(io.Discard)
	l.SetLevel(log.FatalLevel + 1)
	return l
}

type harness struct {
	sender      *IndirectSender
	queue       *SendQueue
	table       *ChildTable
	children    *fakeChildren
	radio       *fakeRadio
	mac         *fakeMac
	forward     *fakeForward
	counters    *fakeCounters
	transmitter *fakeTransmitter
}

func newHarness(maxChildren int, chunkSize int, txOutcome error, childIDs ...ChildIndex) *harness {
	cfg := Config{MaxChildren: maxChildren, DropMessageOnFragmentTxFailure: true, SupervisionMsgAckRequest: true}
	table := NewChildTable(maxChildren)
	queue := &SendQueue{}
	children := newFakeChildren(childIDs...)
	radio := newFakeRadio(maxChildren)
	mac := &fakeMac{short: 0x2000, shortValid: true, ext: [8]byte{9, 9, 9, 9, 9, 9, 9, 9}, panID: 0xface}
	forward := &fakeForward{}
	counters := &fakeCounters{}

	h := &harness{
		queue: queue, table: table, children: children, radio: radio,
		mac: mac, forward: forward, counters: counters,
	}

	sched := InlineScheduler{}
	transmitter := &fakeTransmitter{outcome: txOutcome}
	sender := NewIndirectSender(cfg, table, queue, children, mac, fakeResolver{}, &fakeFragmenter{chunkSize: chunkSize}, radio, transmitter, forward, counters, sched, testLogger())
	transmitter.handler = sender.DataPoll()

	h.sender = sender
	h.transmitter = transmitter
	sender.Start()
	return h
}

// poll simulates one data-poll/tx-complete cycle for child, driving the real
// DataPollHandler.HandleDataPoll path (which calls PrepareFrameForChild and
// then MacTransmitter.Send, exactly as a live poll would).
func (h *harness) poll(child ChildIndex) {
	h.sender.DataPoll().HandleDataPoll(child)
}
