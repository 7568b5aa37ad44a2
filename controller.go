// Package netrap wires the serial device, TCP listeners, stdin and the
// router into a single poll(2)-driven event loop (spec.md §2).
package netrap

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/access"
	"github.com/logxen/netrap/internal/client"
	"github.com/logxen/netrap/internal/config"
	"github.com/logxen/netrap/internal/device"
	"github.com/logxen/netrap/internal/endpoint"
	"github.com/logxen/netrap/internal/eventloop"
	"github.com/logxen/netrap/internal/listener"
	"github.com/logxen/netrap/internal/netio"
	"github.com/logxen/netrap/internal/router"
	"github.com/logxen/netrap/internal/stdin"
)

type options struct {
	log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{log: zap.NewNop().Sugar()}
}

// Option configures a Controller.
type Option func(*options)

// WithLog sets the controller's logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

// Controller is the top-level orchestration component: it owns the
// endpoint registry, the device, the listeners it accepts clients on, the
// stdin endpoint, and the self-pipe that lets an external signal forwarder
// interrupt the event loop.
type Controller struct {
	cfg *config.Config
	log *zap.SugaredLogger

	registry *endpoint.Registry
	device   *device.Device
	loop     *eventloop.Loop

	selfPipeR int
	selfPipeW int
}

// unsetFD marks selfPipeR/selfPipeW before the pipe is created, so Close does
// not mistake an un-opened descriptor for fd 0 (stdin).
const unsetFD = -1

// New builds a Controller from cfg: opens the serial device, binds the
// configured TCP listeners, and registers stdin, but does not yet run the
// event loop (see Run).
func New(cfg *config.Config, opts ...Option) (*Controller, error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	log := o.log

	bufCap := uint32(cfg.Buffer.Capacity.Bytes())

	allow, err := access.New(cfg.Access.Allow)
	if err != nil {
		return nil, fmt.Errorf("netrap: %w", err)
	}

	reg := endpoint.NewRegistry()
	rt := router.New(reg, os.Stdout)

	c := &Controller{cfg: cfg, log: log, registry: reg, selfPipeR: unsetFD, selfPipeW: unsetFD}

	devID := reg.NextID()
	reopen := device.ReopenPolicy{
		MaxAttempts: cfg.Device.Reopen.MaxAttempts,
		MaxInterval: cfg.Device.Reopen.MaxInterval,
	}
	dev, err := device.Open(devID, cfg.Device.Path, cfg.Device.Baud, bufCap, reopen, rt, log)
	if err != nil {
		return nil, fmt.Errorf("netrap: opening device: %w", err)
	}
	reg.Add(dev)
	c.device = dev

	newClient := func(fd int, peer string) (*client.Client, error) {
		id := reg.NextID()
		cl, err := client.New(id, fd, peer, bufCap, dev, log)
		if err != nil {
			return nil, err
		}
		reg.Add(cl)
		return cl, nil
	}

	listeners, err := netio.ListenWildcard(cfg.Listen.Port)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("netrap: %w", err)
	}
	for _, l := range listeners {
		lid := reg.NextID()
		le := listener.New(lid, l.FD, netio.AddrString(l.Addr), allow, newClient, log)
		reg.Add(le)
		log.Infow("listening", "addr", netio.AddrString(l.Addr))
	}

	stdinID := reg.NextID()
	reg.Add(stdin.New(stdinID, int(os.Stdin.Fd()), dev))

	pipe := make([]int, 2)
	if err := unix.Pipe(pipe); err != nil {
		c.Close()
		return nil, fmt.Errorf("netrap: creating self-pipe: %w", err)
	}
	c.selfPipeR = pipe[0]
	c.selfPipeW = pipe[1]

	c.loop = eventloop.New(reg, pipe[0], log)

	return c, nil
}

// Interrupt wakes a blocked Run by writing a byte to the self-pipe. It is
// safe to call from a signal-forwarding goroutine (SPEC_FULL.md §10); it
// touches no controller state beyond the pipe's write end.
func (c *Controller) Interrupt() {
	unix.Write(c.selfPipeW, []byte{0})
}

// Run drives the event loop until shutdown. A clean operator-requested
// shutdown (stdin EOF or Interrupt) is reported via eventloop.IsShutdown on
// the returned error.
func (c *Controller) Run(_ context.Context) error {
	c.log.Info("running controller")
	defer c.log.Info("stopped controller")
	return c.loop.Run()
}

// Close releases every currently-registered endpoint and the self-pipe,
// aggregating any failures.
func (c *Controller) Close() error {
	var result *multierror.Error

	if c.registry != nil {
		for _, e := range c.registry.Endpoints() {
			if err := c.registry.Remove(e.ID()); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	if c.selfPipeW != unsetFD {
		if err := unix.Close(c.selfPipeW); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.selfPipeR != unsetFD {
		if err := unix.Close(c.selfPipeR); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
