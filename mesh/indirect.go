package mesh

import (
	"github.com/charmbracelet/log"
)

// DirectSendTracker lets IndirectSender cooperate with the (external,
// out-of-scope) direct-transmission path over the shared send queue: before
// freeing a message, the forwarder's "currently sending" pointer must be
// nulled if it refers to that message (spec §4.3.1, §5 "Shared resources",
// §9 "Open question").
type DirectSendTracker interface {
	CurrentDirectMessage() *Message
	ClearCurrentDirectMessage()
}

// Counters is the subset of the mesh forwarder's IP-level transmit
// counters the indirect sender updates (spec §4.3.5, §7 "the IP-tx-failure
// counter increments").
type Counters interface {
	IPTxSuccess()
	IPTxFailure()
}

// IndirectSender is the orchestration layer described in spec §4.3: it
// tracks, per child, which message is currently selected and how far
// through it transmission has progressed, and it drives the
// SourceMatchController and DataPollHandler to match.
type IndirectSender struct {
	config Config

	table    *ChildTable
	queue    *SendQueue
	children ChildProvider
	mac      MacPort
	resolver AddressResolver
	frag     Fragmenter
	forward  DirectSendTracker
	counters Counters
	logger   *log.Logger

	sourceMatch *SourceMatchController
	dataPoll    *DataPollHandler

	enabled bool
}

// NewIndirectSender wires together a SourceMatchController and a
// DataPollHandler around the given collaborators, exactly as
// IndirectSender's constructor does in the original core (spec §2).
func NewIndirectSender(
	config Config,
	table *ChildTable,
	queue *SendQueue,
	children ChildProvider,
	mac MacPort,
	resolver AddressResolver,
	frag Fragmenter,
	radio SourceMatchRadio,
	transmitter MacTransmitter,
	forward DirectSendTracker,
	counters Counters,
	scheduler Scheduler,
	logger *log.Logger,
) *IndirectSender {
	s := &IndirectSender{
		config:   config,
		table:    table,
		queue:    queue,
		children: children,
		mac:      mac,
		resolver: resolver,
		frag:     frag,
		forward:  forward,
		counters: counters,
		logger:   logger,
	}
	s.sourceMatch = NewSourceMatchController(radio, children, table, logger)
	s.dataPoll = NewDataPollHandler(s, transmitter, scheduler, logger)
	return s
}

// DataPoll returns the sender's DataPollHandler, for platform backends that
// need to route inbound data-poll and tx-complete events to it.
func (s *IndirectSender) DataPoll() *DataPollHandler { return s.dataPoll }

// Start enables indirect transmission (spec §4.3.6).
func (s *IndirectSender) Start() { s.enabled = true }

// Stop disables indirect transmission: every child's current message
// reference is cleared, every source-match count is reset, and the
// DataPollHandler's staged frames are dropped (spec §4.3.6).
func (s *IndirectSender) Stop() {
	if !s.enabled {
		return
	}
	for _, child := range s.children.Iterate(FilterAnyExceptInvalid) {
		s.table.state(child).currentMessage = nil
		s.sourceMatch.ResetMessageCount(child)
	}
	s.dataPoll.Clear()
	s.enabled = false
}

// AddMessageForSleepyChild marks msg as pending for child and kicks off the
// update protocol (spec §4.3.1).
func (s *IndirectSender) AddMessageForSleepyChild(msg *Message, child ChildIndex) error {
	if s.children.IsRxOnWhenIdle(child) {
		return ErrInvalidState
	}

	idx := int(child)
	if msg.ChildMask(idx) {
		return ErrAlready
	}

	msg.SetChildMask(idx)
	s.sourceMatch.IncrementMessageCount(child)
	s.RequestMessageUpdate(child)
	return nil
}

// RemoveMessageFromSleepyChild clears msg's pending bit for child and kicks
// off the update protocol (spec §4.3.1).
func (s *IndirectSender) RemoveMessageFromSleepyChild(msg *Message, child ChildIndex) error {
	idx := int(child)
	if !msg.ChildMask(idx) {
		return ErrNotFound
	}

	msg.ClearChildMask(idx)
	s.sourceMatch.DecrementMessageCount(child)
	s.RequestMessageUpdate(child)
	return nil
}

// ClearAllMessagesForSleepyChild walks the send queue, clears child's bit on
// every message pending for it, frees any message that becomes unreferenced,
// and purges the child's staged frame (spec §4.3.1).
func (s *IndirectSender) ClearAllMessagesForSleepyChild(child ChildIndex) {
	st := s.table.state(child)
	if st.queuedCount == 0 {
		return
	}

	idx := int(child)
	for _, msg := range s.queue.Messages() {
		if !msg.ChildMask(idx) {
			continue
		}
		msg.ClearChildMask(idx)

		if !msg.IsChildPending() && !msg.DirectTransmission {
			if s.forward != nil && s.forward.CurrentDirectMessage() == msg {
				s.forward.ClearCurrentDirectMessage()
			}
			s.queue.Dequeue(msg)
		}
	}

	st.currentMessage = nil
	s.sourceMatch.ResetMessageCount(child)

	s.dataPoll.RequestFrameChange(PurgeFrame, child)
}

// SetChildUseShortAddress switches which address form source-match tracks
// child by, only touching the table when the form actually changes (spec
// §4.1, §4.3.5 step 2).
func (s *IndirectSender) SetChildUseShortAddress(child ChildIndex, useShort bool) {
	if s.table.state(child).useShortAddress == useShort {
		return
	}
	s.sourceMatch.SetSrcMatchAsShort(child, useShort)
}

// FindIndirectMessage scans the send queue in FIFO order for the next
// message pending for child, dropping (and freeing) any supervision message
// found ahead of real traffic along the way (spec §4.3.2 "Supervision
// coalescing").
func (s *IndirectSender) FindIndirectMessage(child ChildIndex) *Message {
	idx := int(child)
	st := s.table.state(child)

	for _, msg := range s.queue.Messages() {
		if !msg.ChildMask(idx) {
			continue
		}

		if msg.Type == TypeSupervision && st.queuedCount > 1 {
			msg.ClearChildMask(idx)
			s.sourceMatch.DecrementMessageCount(child)
			s.queue.Dequeue(msg)
			continue
		}

		return msg
	}
	return nil
}

// RequestMessageUpdate reconciles child's current message with the send
// queue, per the five cases in spec §4.3.3.
func (s *IndirectSender) RequestMessageUpdate(child ChildIndex) {
	st := s.table.state(child)
	cur := st.currentMessage

	// Case 1: current message no longer applies.
	if cur != nil && !cur.ChildMask(int(child)) {
		st.currentMessage = nil
		st.waitingForUpdate = true
		s.dataPoll.RequestFrameChange(PurgeFrame, child)
		return
	}

	// Case 2: an update is already in flight.
	if st.waitingForUpdate {
		return
	}

	next := s.FindIndirectMessage(child)

	// Case 3: no change in selection.
	if cur == next {
		return
	}

	// Case 4: currently idle, new message available.
	if cur == nil {
		s.UpdateIndirectMessage(child)
		return
	}

	// Case 5: currently transmitting a different message. Only safe to
	// swap before any fragment has gone out.
	if st.fragmentOffset != 0 {
		return
	}

	st.waitingForUpdate = true
	s.dataPoll.RequestFrameChange(ReplaceFrame, child)
}

// HandleFrameChangeDone is DataPollHandler's completion callback for a
// Purge or Replace request (spec §4.3.3).
func (s *IndirectSender) HandleFrameChangeDone(child ChildIndex) {
	st := s.table.state(child)
	if !st.waitingForUpdate {
		return
	}
	s.UpdateIndirectMessage(child)
}

// UpdateIndirectMessage commits child's current message to whatever
// FindIndirectMessage now selects, resetting the fragment cursor and
// tx-success tracking (spec §4.3.3).
func (s *IndirectSender) UpdateIndirectMessage(child ChildIndex) {
	st := s.table.state(child)
	msg := s.FindIndirectMessage(child)

	st.waitingForUpdate = false
	st.currentMessage = msg
	st.fragmentOffset = 0
	st.txSuccessSoFar = true

	if msg != nil {
		s.dataPoll.HandleNewFrame(child)
	}
}

// PrepareFrameForChild builds the MAC frame to send in response to a data
// poll from child (spec §4.3.4). It is DataPollHandler's callback, invoked
// via the SenderCallbacks interface.
func (s *IndirectSender) PrepareFrameForChild(frame *Frame, child ChildIndex) error {
	if !s.enabled {
		return ErrAbort
	}

	st := s.table.state(child)
	msg := st.currentMessage

	if msg == nil {
		s.prepareEmptyFrame(frame, child, true)
		return nil
	}

	switch msg.Type {
	case TypeIP6:
		next, err := s.prepareDataFrame(frame, child, msg)
		if err != nil {
			return err
		}
		st.pendingNextOffset = next

	case TypeSupervision:
		s.prepareEmptyFrame(frame, child, s.config.SupervisionMsgAckRequest)
		st.pendingNextOffset = msg.Length()

	default:
		panic("mesh: unknown message type at frame-prepare time")
	}

	return nil
}

func (s *IndirectSender) macAddressOf(child ChildIndex) Address {
	st := s.table.state(child)
	if st.useShortAddress {
		return ShortAddress(s.children.ShortAddress(child))
	}
	return ExtendedAddress(s.children.ExtAddress(child))
}

func (s *IndirectSender) prepareDataFrame(frame *Frame, child ChildIndex, msg *Message) (int, error) {
	st := s.table.state(child)

	macSrc := s.resolver.MacSourceAddress(msg)
	macDst, ok := s.resolver.LinkLocalMacDestination(msg)
	if !ok {
		macDst = s.macAddressOf(child)
	}

	directTxOffset := msg.Offset
	msg.Offset = int(st.fragmentOffset)

	next, err := s.frag.PrepareDataFrame(frame, msg, macSrc, macDst)

	msg.Offset = directTxOffset

	if err != nil {
		return 0, err
	}

	if st.queuedCount > 1 {
		frame.SetFramePending(true)
	}

	return next, nil
}

func (s *IndirectSender) prepareEmptyFrame(frame *Frame, child ChildIndex, ackRequest bool) {
	macDst := s.macAddressOf(child)
	macSrc := ShortAddress(s.mac.ShortAddress())

	if !s.mac.ShortAddressValid() || !macDst.IsShort {
		macSrc = ExtendedAddress(s.mac.ExtAddress())
	}

	frame.InitMacHeader(buildFrameControl(ackRequest, macDst, macSrc), KeyIDMode1)
	frame.SetDstPanId(s.mac.PanID())
	frame.SetSrcPanId(s.mac.PanID())
	frame.SetDstAddr(macDst)
	frame.SetSrcAddr(macSrc)
	frame.SetPayloadLength(0)
	frame.SetFramePending(false)
}

// HandleSentFrameToChild applies the post-transmission policy from spec
// §4.3.5: record success/failure, advance or retire the message, update
// counters and source-match state, and select the next message.
func (s *IndirectSender) HandleSentFrameToChild(frame *Frame, txErr error, child ChildIndex) {
	if !s.enabled {
		return
	}

	st := s.table.state(child)
	msg := st.currentMessage
	nextOffset := st.pendingNextOffset

	switch txErr {
	case nil:
		s.children.RecordSentFrame(child)

	case ErrNoAck, ErrChannelAccessFailure, ErrTxAbort:
		st.txSuccessSoFar = false
		if s.config.DropMessageOnFragmentTxFailure && msg != nil {
			nextOffset = msg.Length()
		}

	default:
		panic("mesh: unknown error code at tx-complete")
	}

	if msg != nil && nextOffset < msg.Length() {
		st.setFragmentOffset(nextOffset)
		s.dataPoll.HandleNewFrame(child)
		return
	}

	if msg != nil {
		finalErr := txErr
		idx := int(child)

		st.currentMessage = nil
		s.children.RecordMessageTxStatus(child, st.txSuccessSoFar)

		// Switch to short-address source-match tracking after the
		// first transmission attempt, regardless of outcome (spec
		// §4.3.5 step 2).
		s.sourceMatch.SetSrcMatchAsShort(child, true)

		if !s.config.DropMessageOnFragmentTxFailure && !st.txSuccessSoFar && finalErr == nil {
			finalErr = ErrFailed
		}

		if msg.Type == TypeIP6 && s.counters != nil {
			if st.txSuccessSoFar {
				s.counters.IPTxSuccess()
			} else {
				s.counters.IPTxFailure()
			}
		}

		if msg.ChildMask(idx) {
			msg.ClearChildMask(idx)
			s.sourceMatch.DecrementMessageCount(child)
		}

		if !msg.DirectTransmission && !msg.IsChildPending() {
			if s.forward != nil && s.forward.CurrentDirectMessage() == msg {
				s.forward.ClearCurrentDirectMessage()
			}
			s.queue.Dequeue(msg)
		}
	}

	s.UpdateIndirectMessage(child)

	if s.enabled {
		s.SweepRemovedChildren()
	}
}

// SweepRemovedChildren clears indirect messages for any child that has left
// the valid/restoring states but still has messages queued (spec §4.3.5
// step 8; made an explicit, named operation per SPEC_FULL §11 — the
// original core calls this ClearMessagesForRemovedChildren).
func (s *IndirectSender) SweepRemovedChildren() {
	for _, child := range s.children.Iterate(FilterAnyExceptValidOrRestoring) {
		if s.table.state(child).queuedCount == 0 {
			continue
		}
		s.ClearAllMessagesForSleepyChild(child)
	}
}
