// Package listener implements the TCP listener endpoint: accept exactly
// one connection per readable event, optionally reject it via an address
// allow list, and otherwise hand it off as a new client endpoint.
package listener

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/client"
	"github.com/logxen/netrap/internal/endpoint"
	"github.com/logxen/netrap/internal/netio"
)

// AllowList is the subset of internal/access.AllowList the listener needs.
type AllowList interface {
	Allowed(addr string) bool
}

// ClientFactory builds and registers a new client endpoint for an accepted
// connection. It is supplied by the controller so that the listener does
// not need to know about the registry or the device directly.
type ClientFactory func(fd int, peer string) (*client.Client, error)

// Listener is a bound, listening socket.
type Listener struct {
	id   int
	fd   int
	addr string

	allow   AllowList
	newConn ClientFactory
	log     *zap.SugaredLogger
}

// New wraps an already-bound-and-listening socket.
func New(id int, fd int, addr string, allow AllowList, newConn ClientFactory, log *zap.SugaredLogger) *Listener {
	return &Listener{id: id, fd: fd, addr: addr, allow: allow, newConn: newConn, log: log}
}

func (l *Listener) ID() int            { return l.id }
func (l *Listener) FD() int            { return l.fd }
func (l *Listener) Kind() endpoint.Kind { return endpoint.KindListener }

func (l *Listener) WantRead() bool  { return true }
func (l *Listener) WantWrite() bool { return false }
func (l *Listener) WantErr() bool   { return true }

// HandleReadable accepts exactly one pending connection (spec.md §4.4). A
// transient accept(2) failure (a connection aborted before being accepted,
// an interrupted call, EAGAIN, or the process or system running out of
// file descriptors) is logged and otherwise ignored rather than
// tearing down the listener, since the listening socket itself is still
// healthy; any other accept error is propagated and does tear it down.
func (l *Listener) HandleReadable() error {
	fd, peer, err := netio.Accept(l.fd)
	if err != nil {
		if isTransientAcceptError(err) {
			l.log.Infow("transient accept error, continuing", "listener", l.addr, "err", err)
			return nil
		}
		return fmt.Errorf("listener %s: accept: %w", l.addr, err)
	}

	if l.allow != nil && !l.allow.Allowed(peer) {
		l.log.Infow("rejected connection not in allow list", "peer", peer, "listener", l.addr)
		unix.Close(fd)
		return nil
	}

	if _, err := l.newConn(fd, peer); err != nil {
		l.log.Warnw("failed to register new client", "peer", peer, "err", err)
		unix.Close(fd)
		return nil
	}

	l.log.Infow("accepted connection", "peer", peer, "listener", l.addr)
	return nil
}

func (l *Listener) HandleWritable() error { return nil }

func (l *Listener) HandleError() error {
	return fmt.Errorf("listener %s: error condition reported", l.addr)
}

func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// isTransientAcceptError reports whether err is an accept(2) failure that
// leaves the listening socket itself usable: an aborted or interrupted
// connection attempt, EAGAIN, or a process- or system-wide file descriptor
// limit (EMFILE/ENFILE).
func isTransientAcceptError(err error) bool {
	return errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)
}
