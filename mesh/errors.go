// Package mesh implements the indirect-transmission core of a Thread/802.15.4
// FTD mesh router: buffering frames for sleepy children, driving the radio's
// source-match table, and releasing frames on data poll.
package mesh

import "errors"

// Sentinel errors surfaced at the API boundary. These mirror the otError
// values an OpenThread-style core returns from the equivalent calls; callers
// should compare with errors.Is.
var (
	// ErrAlready is returned when a message is added for a child that
	// already has it pending.
	ErrAlready = errors.New("mesh: message already pending for child")

	// ErrNotFound is returned when removing a message that was never
	// added for the given child.
	ErrNotFound = errors.New("mesh: message not pending for child")

	// ErrInvalidState is returned when an operation that requires a
	// sleepy child is attempted against a child with its receiver on.
	ErrInvalidState = errors.New("mesh: child does not use indirect transmission")

	// ErrAbort is returned from frame preparation when the sender is
	// disabled; the MAC must not transmit a stale staged frame.
	ErrAbort = errors.New("mesh: indirect sender is stopped")

	// ErrFailed is the promoted tx-complete status described in
	// spec §4.3.5 step 3: the final fragment reported success but an
	// earlier fragment of the same message did not.
	ErrFailed = errors.New("mesh: indirect transmission failed")
)

// Tx-complete outcomes a MAC transmitter reports to HandleSentFrameToChild
// (spec §4.3.5 "Interpret error"). A nil error means the frame was
// acknowledged; any value other than these three (and nil) at tx-complete
// is a programming error (spec §7 "unknown error code ... fatal").
var (
	// ErrNoAck means the frame was sent but no ack was received.
	ErrNoAck = errors.New("mesh: no ack received")

	// ErrChannelAccessFailure means the radio could not get clear
	// channel access (CCA failure) before the retry budget ran out.
	ErrChannelAccessFailure = errors.New("mesh: channel access failure")

	// ErrTxAbort means the MAC aborted the transmission attempt.
	ErrTxAbort = errors.New("mesh: transmission aborted")
)
