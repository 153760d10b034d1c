package mesh

// Config holds the compile-time-knob equivalents from spec §6
// "Configuration knobs", expressed as runtime fields so a single binary can
// be driven by a config file (see the top-level config package) rather than
// rebuilt per policy choice.
type Config struct {
	// MaxChildren caps the child-mask width and ChildTable capacity.
	// Must not exceed MaxQueuedCount (2^14 - 1).
	MaxChildren int

	// DropMessageOnFragmentTxFailure enables the policy in spec §4.3.5:
	// once any fragment of a message fails, skip the remaining
	// fragments instead of sending them anyway.
	DropMessageOnFragmentTxFailure bool

	// SupervisionMsgAckRequest controls whether supervision frames set
	// the 802.15.4 ack-request bit.
	SupervisionMsgAckRequest bool
}
