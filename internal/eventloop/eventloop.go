// Package eventloop implements the single-threaded, readiness-based
// multiplexor described in spec.md §4.7: one poll(2) cycle per iteration,
// dispatching error, then read, then write readiness across every
// registered endpoint in registry insertion order.
package eventloop

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/endpoint"
)

// shutdownSignal is the error Run returns when the loop stops cleanly
// (operator stdin EOF, the self-pipe firing, or no endpoint left
// registered). It is not itself an error condition worth a non-zero exit.
type shutdownSignal struct{ cause error }

func (s shutdownSignal) Error() string { return s.cause.Error() }
func (s shutdownSignal) Unwrap() error { return s.cause }

// Shutdown wraps cause as a clean-shutdown signal recognized by Run.
func Shutdown(cause error) error { return shutdownSignal{cause: cause} }

// IsShutdown reports whether err (as returned by Run) represents a clean
// shutdown rather than a genuine failure.
func IsShutdown(err error) bool {
	var s shutdownSignal
	return errors.As(err, &s)
}

// Loop drives the registry through poll(2) cycles until an endpoint signals
// shutdown or an unrecoverable error occurs.
type Loop struct {
	registry *endpoint.Registry
	selfPipe [2]int
	log      *zap.SugaredLogger
}

// New builds a Loop over registry. selfPipeR is the read end of a pipe the
// caller has already created with unix.Pipe and whose write end a signal
// forwarder goroutine writes one byte to on SIGINT/SIGTERM (spec.md §10):
// polling it for readability alongside every endpoint's fd (it is not
// itself a registry endpoint) is what lets a pending unix.Poll unblock
// promptly without the loop itself touching signal state.
func New(registry *endpoint.Registry, selfPipeR int, log *zap.SugaredLogger) *Loop {
	return &Loop{registry: registry, selfPipe: [2]int{selfPipeR, -1}, log: log}
}

// Run blocks, driving poll cycles until shutdown. A shutdown-wrapped error
// is returned when the loop exits cleanly (check with IsShutdown); any
// other error is a genuine failure.
func (l *Loop) Run() error {
	for {
		endpoints := l.registry.Endpoints()
		if len(endpoints) == 0 {
			return Shutdown(errNoEndpoints)
		}

		fds := make([]unix.PollFd, 0, len(endpoints)+1)
		fds = append(fds, unix.PollFd{Fd: int32(l.selfPipe[0]), Events: unix.POLLIN})
		for _, e := range endpoints {
			var events int16
			if e.WantRead() {
				events |= unix.POLLIN
			}
			if e.WantWrite() {
				events |= unix.POLLOUT
			}
			if e.WantErr() {
				events |= unix.POLLERR
			}
			fds = append(fds, unix.PollFd{Fd: int32(e.FD()), Events: events})
		}

		_, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			return Shutdown(errSignaled)
		}

		// fds[1:] lines up positionally with endpoints; a handler may remove
		// endpoints from the registry mid-iteration (the registry snapshot
		// we built fds from is stable for the rest of this cycle).
		for i, e := range endpoints {
			revents := fds[i+1].Revents

			if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				if err := l.dispatchError(e); err != nil {
					return err
				}
				continue
			}

			if revents&unix.POLLIN != 0 {
				if err := l.dispatchRead(e); err != nil {
					return err
				}
			}

			if revents&unix.POLLOUT != 0 {
				if err := l.dispatchWrite(e); err != nil {
					return err
				}
			}
		}
	}
}

var errNoEndpoints = errors.New("eventloop: no endpoints remain registered")
var errSignaled = errors.New("eventloop: terminated by signal")

func (l *Loop) dispatchError(e endpoint.Endpoint) error {
	if err := e.HandleError(); err != nil {
		return l.teardownOrPropagate(e, err)
	}
	return nil
}

func (l *Loop) dispatchRead(e endpoint.Endpoint) error {
	if err := e.HandleReadable(); err != nil {
		return l.teardownOrPropagate(e, err)
	}
	return nil
}

func (l *Loop) dispatchWrite(e endpoint.Endpoint) error {
	if err := e.HandleWritable(); err != nil {
		return l.teardownOrPropagate(e, err)
	}
	return nil
}

// teardownOrPropagate removes endpoints that failed with a disconnect-style
// error (clients, listeners) and treats stdin's shutdown signal as a clean
// exit; anything else (device reopen exhaustion) is a fatal error.
func (l *Loop) teardownOrPropagate(e endpoint.Endpoint, handlerErr error) error {
	if IsShutdown(handlerErr) {
		return handlerErr
	}

	switch e.Kind() {
	case endpoint.KindStdin:
		return Shutdown(handlerErr)
	case endpoint.KindClient, endpoint.KindListener:
		l.log.Infow("removing endpoint", "kind", e.Kind().String(), "id", e.ID(), "reason", handlerErr)
		if err := l.registry.Remove(e.ID()); err != nil {
			return err
		}
		return nil
	default:
		return handlerErr
	}
}
