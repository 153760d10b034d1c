package mesh

// Scheduler defers a callback to a later turn of the single event loop that
// drives this module (spec §5 "the apparent asynchrony ... is implemented
// by deferring the callback to the event loop's next iteration, not by
// suspending a call stack"). DataPollHandler uses it so that
// RequestFrameChange always returns before HandleFrameChangeDone runs, even
// when the request could be satisfied immediately — see spec §9 "Post
// completions through the event loop uniformly".
type Scheduler interface {
	Post(fn func())
}

// InlineScheduler runs posted callbacks synchronously and immediately. It
// is useful for unit tests that want to assert on the synchronous-path
// behavior without standing up a real event loop; it deliberately violates
// the "completion occurs on a later turn" guarantee and must not be used
// outside tests.
type InlineScheduler struct{}

// Post invokes fn immediately.
func (InlineScheduler) Post(fn func()) { fn() }
