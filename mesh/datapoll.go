package mesh

import "github.com/charmbracelet/log"

// FrameChangeKind distinguishes the two out-of-band frame-change requests
// IndirectSender can issue against a staged frame (spec §4.2).
type FrameChangeKind int

const (
	// PurgeFrame withdraws the frame currently staged for a child
	// without replacing it.
	PurgeFrame FrameChangeKind = iota
	// ReplaceFrame withdraws the staged frame and arms preparation of a
	// fresh one.
	ReplaceFrame
)

// pollState is the per-child state of the thin state machine DataPollHandler
// runs (spec §4.2: "{Idle, Armed, InFlight, ChangePending}").
type pollState int

const (
	pollIdle pollState = iota
	pollArmed
	pollInFlight
	pollChangePending
)

// SenderCallbacks is the contract DataPollHandler needs from IndirectSender
// (spec §4.2/§4.3): prepare a frame when a child polls, learn the outcome
// once the MAC finishes sending it, and learn when a requested frame change
// has completed.
type SenderCallbacks interface {
	PrepareFrameForChild(frame *Frame, child ChildIndex) error
	HandleSentFrameToChild(frame *Frame, err error, child ChildIndex)
	HandleFrameChangeDone(child ChildIndex)
}

// MacTransmitter starts transmission of a prepared frame. The result is
// reported later, out of band, via DataPollHandler.HandleTransmitDone —
// mirroring how the MAC layer reports tx-complete asynchronously from
// interrupt context (spec §5 "short interrupt handlers that enqueue events").
type MacTransmitter interface {
	Send(frame *Frame, child ChildIndex)
}

// PollObserver is notified of every data poll and resolved transmission
// outcome, for field diagnosis of sleepy-child delivery problems (spec §1
// excludes how frames are logged from the core, but the event itself is
// exactly where such an observer belongs). Optional: a nil observer means
// nothing is recorded.
type PollObserver interface {
	RecordPoll(child ChildIndex)
	RecordOutcome(child ChildIndex, err error)
}

// DataPollHandler adapts the MAC's data-poll and tx-complete events into
// IndirectSender's per-child frame-preparation protocol (spec §4.2).
type DataPollHandler struct {
	sender      SenderCallbacks
	transmitter MacTransmitter
	scheduler   Scheduler
	logger      *log.Logger
	observer    PollObserver

	states      map[ChildIndex]pollState
	pendingKind map[ChildIndex]FrameChangeKind
	inFlight    map[ChildIndex]*Frame
}

// NewDataPollHandler builds a handler that prepares frames via sender,
// transmits them via transmitter, and defers frame-change completions
// through scheduler.
func NewDataPollHandler(sender SenderCallbacks, transmitter MacTransmitter, scheduler Scheduler, logger *log.Logger) *DataPollHandler {
	return &DataPollHandler{
		sender:      sender,
		transmitter: transmitter,
		scheduler:   scheduler,
		logger:      logger,
		states:      make(map[ChildIndex]pollState),
		pendingKind: make(map[ChildIndex]FrameChangeKind),
		inFlight:    make(map[ChildIndex]*Frame),
	}
}

func (h *DataPollHandler) stateOf(child ChildIndex) pollState {
	return h.states[child]
}

// SetObserver installs (or clears, with nil) the poll/outcome observer.
func (h *DataPollHandler) SetObserver(observer PollObserver) {
	h.observer = observer
}

// HandleNewFrame arms the handler so the next data poll from child triggers
// frame preparation (spec §4.2 "HandleNewFrame").
func (h *DataPollHandler) HandleNewFrame(child ChildIndex) {
	switch h.stateOf(child) {
	case pollInFlight, pollChangePending:
		// A frame is already staged or a change is already pending;
		// nothing new to arm.
		return
	default:
		h.states[child] = pollArmed
	}
}

// RequestFrameChange withdraws (Purge) or swaps (Replace) the frame staged
// for child. Completion is reported via sender.HandleFrameChangeDone,
// always through the scheduler — synchronously-looking call sites still
// only observe the effect on a later turn (spec §4.2, §9).
func (h *DataPollHandler) RequestFrameChange(kind FrameChangeKind, child ChildIndex) {
	switch h.stateOf(child) {
	case pollInFlight:
		// Defer until the in-flight transmission completes.
		h.states[child] = pollChangePending
		h.pendingKind[child] = kind
		return

	case pollChangePending:
		// A change is already pending; the newer request supersedes it.
		h.pendingKind[child] = kind
		return

	default:
		// Idle or Armed: can be satisfied immediately, but the
		// callback still only runs on the event loop's next turn.
		h.states[child] = pollIdle
		delete(h.inFlight, child)
		h.scheduler.Post(func() {
			h.sender.HandleFrameChangeDone(child)
		})
	}
}

// Clear drops all per-child staged frames and state (spec §4.2 "Clear").
func (h *DataPollHandler) Clear() {
	h.states = make(map[ChildIndex]pollState)
	h.pendingKind = make(map[ChildIndex]FrameChangeKind)
	h.inFlight = make(map[ChildIndex]*Frame)
}

// HandleDataPoll is the MAC-layer inbound callback fired when child sends a
// data-poll frame. If a frame is armed for this child, it is prepared and
// handed to the transmitter; otherwise nothing is sent (the MAC ack alone,
// driven by the source-match table, answers the poll).
func (h *DataPollHandler) HandleDataPoll(child ChildIndex) {
	if h.observer != nil {
		h.observer.RecordPoll(child)
	}

	if h.stateOf(child) != pollArmed {
		return
	}

	frame := &Frame{}
	if err := h.sender.PrepareFrameForChild(frame, child); err != nil {
		if h.logger != nil {
			h.logger.Debug("frame preparation aborted", "child", child, "err", err)
		}
		return
	}

	h.states[child] = pollInFlight
	h.inFlight[child] = frame
	h.transmitter.Send(frame, child)
}

// HandleTransmitDone is the MAC-layer inbound callback fired once a frame
// handed to Send() has been transmitted (successfully or not). It delivers
// the outcome to IndirectSender and then resolves any frame-change request
// that arrived while the frame was in flight.
func (h *DataPollHandler) HandleTransmitDone(child ChildIndex, frame *Frame, err error) {
	delete(h.inFlight, child)

	if h.observer != nil {
		h.observer.RecordOutcome(child, err)
	}

	pending, hadPending := h.pendingKind[child]
	delete(h.pendingKind, child)

	h.states[child] = pollIdle
	h.sender.HandleSentFrameToChild(frame, err, child)

	if !hadPending {
		return
	}

	// The deferred Purge/Replace the in-flight transmission blocked now
	// runs, again only visible on a later scheduler turn.
	_ = pending
	h.scheduler.Post(func() {
		h.sender.HandleFrameChangeDone(child)
	})
}
