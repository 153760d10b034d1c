// Package rcpwatch watches for the RCP's USB-serial device node appearing
// and disappearing, so the daemon can re-open platform/serialmac
// automatically across RCP unplug/replug — the daemon-level counterpart of
// the "platform glue ... all platform glue" exclusion in spec §1. Grounded
// on the teacher's cm108.go, which enumerates USB sound devices over
// libudev by subsystem match; this is the same enumerate-then-monitor
// pattern against the pure-Go github.com/jochenvg/go-udev binding instead
// of cgo libudev.
package rcpwatch

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Event reports an RCP device node appearing or disappearing.
type Event struct {
	Action  string // "add" or "remove"
	DevNode string
}

// Watcher monitors the "tty" subsystem for RCP device nodes.
type Watcher struct {
	u udev.Udev
}

// New builds a Watcher.
func New() *Watcher { return &Watcher{} }

// Find returns the device node of an already-attached RCP, if one is
// present, by scanning the tty subsystem once.
func (w *Watcher) Find() (string, bool, error) {
	e := w.u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return "", false, fmt.Errorf("rcpwatch: match subsystem: %w", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return "", false, fmt.Errorf("rcpwatch: enumerate: %w", err)
	}

	for _, d := range devices {
		if node := d.Devnode(); node != "" {
			return node, true, nil
		}
	}
	return "", false, nil
}

// Watch streams add/remove events for tty devices until ctx is canceled.
func (w *Watcher) Watch(ctx context.Context) (<-chan Event, error) {
	m := w.u.NewMonitorFromNetlink("udev")
	if err := m.FilterAddMatchSubsystem("tty"); err != nil {
		return nil, fmt.Errorf("rcpwatch: filter: %w", err)
	}

	devCh, err := m.DeviceChan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rcpwatch: monitor: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for d := range devCh {
			select {
			case out <- Event{Action: d.Action(), DevNode: d.Devnode()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
