// Package client implements the TCP client endpoint: per-connection rx/tx
// ring buffers, the peer address, and the one-line-per-readable-event
// fairness rule described in spec.md §4.3.
package client

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/endpoint"
	"github.com/logxen/netrap/internal/ring"
)

// ErrDisconnected signals that the peer closed the connection (a zero-byte
// read). The event loop treats this as a request to remove the endpoint.
var ErrDisconnected = errors.New("client: disconnected")

// DeviceTarget is the narrow view of the device endpoint a client needs:
// whether it currently has write permission, and how to hand it a line.
type DeviceTarget interface {
	TokensAvailable() bool
	Submit(line []byte, fromID int)
}

// Client is one accepted TCP connection.
type Client struct {
	id   int
	fd   int
	peer string

	bufCap uint32
	rx, tx *ring.Buffer

	device DeviceTarget
	log    *zap.SugaredLogger
}

// New wraps an already-accepted connection fd.
func New(id, fd int, peer string, bufCap uint32, device DeviceTarget, log *zap.SugaredLogger) (*Client, error) {
	rx, err := ring.New(bufCap)
	if err != nil {
		return nil, err
	}
	tx, err := ring.New(bufCap)
	if err != nil {
		return nil, err
	}
	return &Client{
		id:     id,
		fd:     fd,
		peer:   peer,
		bufCap: bufCap,
		rx:     rx,
		tx:     tx,
		device: device,
		log:    log,
	}, nil
}

func (c *Client) ID() int            { return c.id }
func (c *Client) FD() int            { return c.fd }
func (c *Client) Kind() endpoint.Kind { return endpoint.KindClient }
func (c *Client) Peer() string       { return c.peer }

func (c *Client) WantRead() bool  { return true }
func (c *Client) WantWrite() bool { return c.tx.Readable() > 0 }
func (c *Client) WantErr() bool   { return true }

// QueueResponseLine appends a routed device response line to this client's
// outgoing buffer (internal/router.LineReceiver).
func (c *Client) QueueResponseLine(line []byte) {
	c.tx.Write(line)
}

// HandleReadable ingests at most one read(2) worth of bytes, then — if a
// complete line is now buffered and the device has write permission —
// forwards exactly one line to the device. Any further buffered lines wait
// for the next readable event, which preserves per-event fairness across
// clients (spec.md §4.3).
func (c *Client) HandleReadable() error {
	n, err := c.rx.WriteFromFD(c.fd)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return nil
		}
		return err
	}
	if n == 0 {
		return ErrDisconnected
	}

	if c.rx.HasLine() && c.device.TokensAvailable() {
		buf := make([]byte, c.bufCap)
		got := c.rx.ReadLine(buf)
		line := buf[:got]
		c.log.Infow("forwarding line to device", "peer", c.peer, "fd", c.fd)
		c.device.Submit(line, c.id)
	}
	return nil
}

func (c *Client) HandleWritable() error {
	_, err := c.tx.DrainToFD(c.fd)
	return err
}

func (c *Client) HandleError() error {
	return ErrDisconnected
}

func (c *Client) Close() error {
	return unix.Close(c.fd)
}
