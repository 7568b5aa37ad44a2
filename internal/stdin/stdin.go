// Package stdin implements the operator-input endpoint: a privileged
// submitter whose bytes go straight into the device's tx ring rather than
// through a local rx buffer of their own (spec.md §4.5).
package stdin

import (
	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/endpoint"
)

// ErrShutdown signals that the operator closed stdin (a zero-byte read),
// which the event loop treats as a clean request to terminate.
var ErrShutdown = shutdownError{}

type shutdownError struct{}

func (shutdownError) Error() string { return "stdin: EOF, operator shutdown requested" }

// DeviceTarget is the narrow view of the device endpoint stdin needs.
// Unlike a client, stdin submits unconditionally: its bytes are always
// appended to the device tx ring regardless of token availability, and
// wait there for credit like any other buffered line (spec.md §4.5).
type DeviceTarget interface {
	Submit(line []byte, fromID int)
}

// Stdin is the operator's terminal input, fd 0.
type Stdin struct {
	id     int
	fd     int
	device DeviceTarget
}

// New wraps the given fd (ordinarily os.Stdin.Fd()) as the stdin endpoint.
func New(id, fd int, device DeviceTarget) *Stdin {
	return &Stdin{id: id, fd: fd, device: device}
}

func (s *Stdin) ID() int            { return s.id }
func (s *Stdin) FD() int            { return s.fd }
func (s *Stdin) Kind() endpoint.Kind { return endpoint.KindStdin }

func (s *Stdin) WantRead() bool { return true }

// WantWrite is always false: stdin's write path is a documented no-op
// (spec.md §9(a)) — the controller never buffers anything to write back to
// the operator's terminal through this endpoint; routed responses reach it
// via a direct fd write from the router instead.
func (s *Stdin) WantWrite() bool { return false }
func (s *Stdin) WantErr() bool   { return true }

// HandleReadable reads one chunk of operator input and submits it to the
// device unconditionally. A zero-byte read means the operator closed
// stdin, which terminates the process.
func (s *Stdin) HandleReadable() error {
	buf := make([]byte, 1024)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrShutdown
	}
	s.device.Submit(buf[:n], s.id)
	return nil
}

// HandleWritable is a no-op; see WantWrite.
func (s *Stdin) HandleWritable() error { return nil }

func (s *Stdin) HandleError() error {
	return ErrShutdown
}

// Close is a no-op: the controller does not own fd 0's lifetime.
func (s *Stdin) Close() error { return nil }
