package serialmac

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/term"
	"golang.org/x/sys/unix"

	"github.com/otmesh/meshrouter/mesh"
)

// Transport is a wire-level connection to an 802.15.4 radio co-processor.
// It implements mesh.MacTransmitter: Send writes an encoded frame on the
// wire, and the reference simulated RCP on the other end of the line
// always acks it, with HandleTransmitDone delivered back through the
// event loop exactly as a real RCP's spinel notification would arrive from
// interrupt context (spec §5).
type Transport struct {
	line    *term.Term
	handler transmitDoneReceiver
	sched   mesh.Scheduler

	// simRCP, when set, is the other end of a simulated serial pair
	// (see OpenSimulated) and is closed alongside the transport.
	simRCP *os.File

	// pending holds the frame awaiting an ack byte from the line. The
	// RCP protocol is stop-and-wait: at most one frame is outstanding,
	// matching how the indirect sender only ever has one transmission
	// in flight per data poll.
	pendingMu sync.Mutex
	pending   *pendingTx
}

type pendingTx struct {
	child mesh.ChildIndex
	frame *mesh.Frame
}

// transmitDoneReceiver is satisfied by *mesh.DataPollHandler; kept as a
// narrow local interface so this package does not need the full
// SenderCallbacks surface.
type transmitDoneReceiver interface {
	HandleTransmitDone(child mesh.ChildIndex, frame *mesh.Frame, err error)
}

// Open attaches to a real serial device at devicePath, e.g. /dev/ttyACM0,
// the USB-serial node an RCP usually enumerates as.
func Open(devicePath string, baud int) (*Transport, error) {
	line, err := term.Open(devicePath, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("serialmac: open %s: %w", devicePath, err)
	}
	if err := line.SetSpeed(baud); err != nil {
		line.Close()
		return nil, fmt.Errorf("serialmac: set speed %d on %s: %w", baud, devicePath, err)
	}
	if err := exclusiveAccess(line); err != nil {
		line.Close()
		return nil, err
	}
	t := &Transport{line: line}
	go t.readAcks()
	return t, nil
}

// OpenSimulated creates a PTY pair and returns a Transport bound to the
// master side, plus the slave device path a simulated RCP process (or
// test) can open as if it were the real serial device. Used by
// cmd/meshrouterd's -simulate-rcp mode and by integration tests.
func OpenSimulated() (*Transport, string, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, "", fmt.Errorf("serialmac: open pty: %w", err)
	}

	t := &Transport{simRCP: slave}
	go t.runLoopbackRCP(slave)

	line, err := term.Open(master.Name())
	if err == nil {
		t.line = line
		go t.readAcks()
	}

	return t, slave.Name(), nil
}

// exclusiveAccess asks the kernel for exclusive access to the line (TIOCEXCL),
// matching the defensive posture a production RCP driver takes so a second
// process cannot steal the line out from under the daemon.
func exclusiveAccess(line *term.Term) error {
	fd := int(line.Fd())
	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		return fmt.Errorf("serialmac: TIOCEXCL on fd %d: %w", fd, err)
	}
	return nil
}

// BindHandler wires the transport to the handler whose HandleTransmitDone
// should be invoked once a frame is acknowledged, via scheduler so the
// callback always runs on the event loop (spec §5, §9).
func (t *Transport) BindHandler(handler transmitDoneReceiver, sched mesh.Scheduler) {
	t.handler = handler
	t.sched = sched
}

// Send implements mesh.MacTransmitter. It encodes frame on the wire; the
// outcome is reported by readAcks when the RCP answers with an ack byte (in
// the simulated-RCP case, runLoopbackRCP writes that byte).
func (t *Transport) Send(frame *mesh.Frame, child mesh.ChildIndex) {
	if t.line == nil {
		t.complete(child, frame, fmt.Errorf("serialmac: no line open"))
		return
	}

	t.pendingMu.Lock()
	t.pending = &pendingTx{child: child, frame: frame}
	t.pendingMu.Unlock()

	encoded := encodeFrame(frame)
	if _, err := t.line.Write(encoded); err != nil {
		t.pendingMu.Lock()
		t.pending = nil
		t.pendingMu.Unlock()
		t.complete(child, frame, fmt.Errorf("serialmac: write: %w", err))
		return
	}
}

// readAcks blocks reading single ack bytes off the line and resolves the
// outstanding pending transmission for each one it sees, delivering the
// result back through BindHandler's scheduler exactly as a real RCP's
// spinel notification would arrive from interrupt context.
func (t *Transport) readAcks() {
	buf := make([]byte, 1)
	for {
		n, err := t.line.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}

		t.pendingMu.Lock()
		p := t.pending
		t.pending = nil
		t.pendingMu.Unlock()

		if p == nil {
			continue
		}
		if buf[0] == 0x06 {
			t.complete(p.child, p.frame, nil)
		} else {
			t.complete(p.child, p.frame, mesh.ErrNoAck)
		}
	}
}

func (t *Transport) complete(child mesh.ChildIndex, frame *mesh.Frame, err error) {
	if t.handler == nil {
		return
	}
	done := func() { t.handler.HandleTransmitDone(child, frame, err) }
	if t.sched != nil {
		t.sched.Post(done)
		return
	}
	done()
}

// Close releases the serial line and, if present, the simulated RCP's end
// of the pty pair.
func (t *Transport) Close() error {
	var err error
	if t.line != nil {
		err = t.line.Close()
	}
	if t.simRCP != nil {
		t.simRCP.Close()
	}
	return err
}

// encodeFrame produces a minimal wire encoding of frame: the 2-byte
// big-endian 802.15.4 frame-control field, a 1-byte payload length, and the
// payload. Addresses and PAN IDs are not encoded. The real wire format (spinel-framed HDLC) is
// out of scope (spec §1, "the MAC driver itself"); this is enough for the
// simulated RCP loop to recognize and ack a frame in tests and demos.
func encodeFrame(f *mesh.Frame) []byte {
	buf := make([]byte, 0, 16+len(f.Payload))
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], f.FrameControl)
	buf = append(buf, hdr[:]...)
	buf = append(buf, byte(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf
}

// runLoopbackRCP plays the part of a simulated radio co-processor: it
// reads whatever the transport writes and, after a short simulated
// air-time delay, writes back a single-byte ack so OpenSimulated-based
// tests and demos see realistic (if trivial) serial round trips.
func (t *Transport) runLoopbackRCP(slave *os.File) {
	buf := make([]byte, 4096)
	for {
		n, err := slave.Read(buf)
		if err != nil {
			if err != io.EOF {
				return
			}
			return
		}
		if n == 0 {
			continue
		}
		time.Sleep(time.Millisecond)
		slave.Write([]byte{0x06}) // ACK
	}
}
