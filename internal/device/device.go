// Package device implements the printer/device endpoint: the tx/rx ring
// buffers, the token-based flow-control state machine, and the
// disconnect/reopen path.
package device

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/endpoint"
	"github.com/logxen/netrap/internal/ring"
	"github.com/logxen/netrap/internal/serial"
)

// Router distributes a complete device response line to its submitter. It
// is implemented by internal/router.Router; this narrow interface is all
// the device endpoint needs of it.
type Router interface {
	RouteLine(line []byte, submitterID int, hasSubmitter bool)
}

// ReopenPolicy bounds the retries attempted when the device disconnects
// and must be reopened (spec.md §7/§10). Exhausting the retries is a fatal
// error.
type ReopenPolicy struct {
	MaxAttempts uint
	MaxInterval time.Duration
}

// DefaultReopenPolicy mirrors the compatibility-contract defaults: a
// handful of quick retries, since a USB-serial re-enumeration after
// disconnect is usually a sub-second affair.
var DefaultReopenPolicy = ReopenPolicy{
	MaxAttempts: 5,
	MaxInterval: 30 * time.Second,
}

// Device is the serial device endpoint: rx/tx ring buffers, the
// tokens/maxtoken flow-control counter, and a weak back-reference
// (lastSubmitterID) to whichever endpoint most recently submitted a line.
type Device struct {
	id int
	fd int

	path   string
	baud   int
	bufCap uint32
	reopen ReopenPolicy

	rx, tx *ring.Buffer

	tokens   int
	maxtoken int

	lastSubmitterID  int
	hasLastSubmitter bool

	router Router
	log    *zap.SugaredLogger
}

// Open performs the initial device open. Any failure here is fatal
// (spec.md §4.2): the caller should treat a non-nil error as a reason to
// exit the process rather than retry.
func Open(id int, path string, baud int, bufCap uint32, reopen ReopenPolicy, router Router, log *zap.SugaredLogger) (*Device, error) {
	fd, err := serial.Open(path, baud)
	if err != nil {
		return nil, err
	}
	rx, err := ring.New(bufCap)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	tx, err := ring.New(bufCap)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Device{
		id:       id,
		fd:       fd,
		path:     path,
		baud:     baud,
		bufCap:   bufCap,
		reopen:   reopen,
		rx:       rx,
		tx:       tx,
		tokens:   1,
		maxtoken: 1,
		router:   router,
		log:      log,
	}, nil
}

func (d *Device) ID() int            { return d.id }
func (d *Device) FD() int            { return d.fd }
func (d *Device) Kind() endpoint.Kind { return endpoint.KindDevice }

func (d *Device) WantRead() bool { return true }
func (d *Device) WantErr() bool  { return true }

// WantWrite is true exactly when the device has a complete line queued and
// at least one outstanding token — the invariant that "the device fd is
// never written when tokens == 0" (spec.md §8) is enforced here, since this
// is what the event loop consults to decide whether to poll for
// writability at all; HandleWritable repeats the same check.
func (d *Device) WantWrite() bool {
	return d.tx.HasLine() && d.tokens > 0
}

// TokensAvailable reports whether the device currently has write
// permission, for callers (client endpoints) deciding whether to forward a
// buffered line now or leave it for backpressure.
func (d *Device) TokensAvailable() bool {
	return d.tokens > 0
}

// Tokens reports the current credit count, primarily for tests and
// diagnostics.
func (d *Device) Tokens() int { return d.tokens }

// Submit appends line (which must already end in '\n') to the device's tx
// ring and records fromID as the submitter that will receive the eventual
// response. The caller guarantees line ends with '\n' (spec.md §4.2).
func (d *Device) Submit(line []byte, fromID int) {
	d.tx.Write(line)
	d.lastSubmitterID = fromID
	d.hasLastSubmitter = true
}

// HandleReadable ingests from the device fd and, once at least one
// complete line has arrived, drains every buffered line to the router. A
// zero-byte read with no error is the disconnect signal that triggers
// reopen; a transient read error (EINTR/EAGAIN) is not a disconnect and
// simply waits for the next readable event.
func (d *Device) HandleReadable() error {
	n, err := d.rx.WriteFromFD(d.fd)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return nil
		}
		d.log.Warnw("device read failed, reopening", "path", d.path, "read_err", err)
		return d.doReopen()
	}
	if n == 0 {
		d.log.Warnw("device disconnected, reopening", "path", d.path)
		return d.doReopen()
	}
	d.consumeResponses()
	return nil
}

func (d *Device) consumeResponses() {
	// Sized to the ring's own capacity, the minimum ReadLine requires
	// (spec.md §4.1).
	buf := make([]byte, d.bufCap)
	for d.rx.HasLine() {
		n := d.rx.ReadLine(buf)
		line := buf[:n]
		d.router.RouteLine(line, d.lastSubmitterID, d.hasLastSubmitter)
		if bytes.HasPrefix(line, []byte("ok")) {
			d.bumpToken()
		}
	}
}

func (d *Device) bumpToken() {
	if d.tokens < d.maxtoken {
		d.tokens++
	}
}

// HandleWritable drains exactly one line to the device and consumes one
// token, per spec.md §4.2.
func (d *Device) HandleWritable() error {
	if !d.tx.HasLine() || d.tokens == 0 {
		return nil
	}
	buf := make([]byte, d.bufCap)
	n := d.tx.ReadLine(buf)
	if _, err := unix.Write(d.fd, buf[:n]); err != nil {
		d.log.Warnw("device write failed, reopening", "path", d.path, "err", err)
		return d.doReopen()
	}
	d.tokens--
	return nil
}

// HandleError treats any reported error condition on the device fd as a
// disconnect.
func (d *Device) HandleError() error {
	return d.doReopen()
}

// Close releases the device fd. Pending tx bytes are discarded rather than
// preserved across reopen/shutdown (spec.md §7, a deliberate, documented
// simplification carried over from the original behavior).
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

// doReopen closes the current fd and attempts a replacement open against
// the same path/baud with bounded exponential backoff. Tokens reset to
// full and the last-submitter reference is cleared; pending tx bytes are
// discarded. Exhausting the retry budget is a fatal error.
func (d *Device) doReopen() error {
	unix.Close(d.fd)

	operation := func() (int, error) {
		return serial.Open(d.path, d.baud)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = d.reopen.MaxInterval

	fd, err := backoff.Retry(context.Background(), operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(d.reopen.MaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("device: exhausted reopen attempts for %s: %w", d.path, err)
	}

	rx, err := ring.New(d.bufCap)
	if err != nil {
		unix.Close(fd)
		return err
	}
	tx, err := ring.New(d.bufCap)
	if err != nil {
		unix.Close(fd)
		return err
	}

	d.fd = fd
	d.rx = rx
	d.tx = tx
	d.tokens = 1
	d.maxtoken = 1
	d.hasLastSubmitter = false
	d.lastSubmitterID = 0

	d.log.Infow("device reopened", "path", d.path)
	return nil
}
