// Package resetline drives the RCP's hardware reset line over a Linux GPIO
// character device — the "platform glue (reset)" spec §1 explicitly keeps
// external to the indirect-transmission core. Grounded on the teacher's PTT
// GPIO handling in src/ptt.go, which drives a push-to-talk line the same
// way (toggle a line, wait, release), adapted here to a reset pulse.
package resetline

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Line controls the RCP's reset pin.
type Line struct {
	line *gpiocdev.Line
}

// Open requests chip/offset as an output line, driven high (the RCP is
// normally held out of reset).
func Open(chip string, offset int) (*Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(1))
	if err != nil {
		return nil, fmt.Errorf("resetline: request %s:%d: %w", chip, offset, err)
	}
	return &Line{line: l}, nil
}

// Pulse drives the reset line low for the given duration and then releases
// it, power-cycling a wedged RCP. Matches the hold-then-release shape of
// the teacher's PTT keying sequence, just applied to a reset pin instead of
// a transmit-enable pin.
func (l *Line) Pulse(low time.Duration) error {
	if err := l.line.SetValue(0); err != nil {
		return fmt.Errorf("resetline: assert reset: %w", err)
	}
	time.Sleep(low)
	if err := l.line.SetValue(1); err != nil {
		return fmt.Errorf("resetline: release reset: %w", err)
	}
	return nil
}

// Close releases the GPIO line.
func (l *Line) Close() error {
	return l.line.Close()
}
