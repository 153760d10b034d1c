// Package polltrace keeps a daily-rotating trace of data polls and indirect
// transmission outcomes, for field diagnosis of sleepy-child delivery
// problems — reference-backend logging, not part of the indirect-sender
// core itself (spec §1 excludes "how received frames ... are logged").
// Grounded on the teacher's src/log.go daily-file-rotation strategy
// (close and reopen under a new name at UTC midnight), with the file name
// built through github.com/lestrrat-go/strftime the way the teacher's
// src/xmit.go formats its own timestamps, instead of Go's own layout
// syntax.
package polltrace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/otmesh/meshrouter/mesh"
)

const namePattern = "%Y-%m-%d-polltrace.log"

// Trace appends one line per data poll and per transmission outcome to a
// file that rotates daily, named from namePattern under Directory. It
// satisfies mesh.PollObserver, so DataPollHandler.SetObserver(trace) is all
// that's needed to wire it in.
type Trace struct {
	dir string

	mu       sync.Mutex
	file     *os.File
	openName string
}

// Open prepares a Trace writing under dir, creating it if it does not
// already exist; the first write opens the current day's file lazily.
func Open(dir string) (*Trace, error) {
	if dir != "" {
		if stat, statErr := os.Stat(dir); statErr != nil || !stat.IsDir() {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("polltrace: create directory %s: %w", dir, mkErr)
			}
		}
	}
	return &Trace{dir: dir}, nil
}

// RecordPoll logs a data poll arriving for child.
func (t *Trace) RecordPoll(child mesh.ChildIndex) {
	t.writeLine(fmt.Sprintf("poll child=%d", child))
}

// RecordOutcome logs the resolved outcome of an indirect transmission to
// child: err is nil on success, or one of mesh's transmit sentinel errors.
func (t *Trace) RecordOutcome(child mesh.ChildIndex, err error) {
	if err == nil {
		t.writeLine(fmt.Sprintf("tx child=%d result=ack", child))
		return
	}
	t.writeLine(fmt.Sprintf("tx child=%d result=fail reason=%s", child, err))
}

func (t *Trace) writeLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	name, err := strftime.Format(namePattern, now)
	if err != nil {
		return
	}

	if t.file != nil && name != t.openName {
		t.file.Close()
		t.file = nil
	}

	if t.file == nil {
		full := filepath.Join(t.dir, name)
		f, err := os.OpenFile(full, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return
		}
		t.file = f
		t.openName = name
	}

	fmt.Fprintf(t.file, "%s %s\n", now.Format(time.RFC3339), line)
}

// Close releases the currently open trace file, if any.
func (t *Trace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
