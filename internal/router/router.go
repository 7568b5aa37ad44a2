// Package router implements the response-attribution rules in spec.md
// §4.6: every line the device emits is sanitized, optionally mirrored to
// stdout, and delivered to whichever endpoint last submitted a line to the
// device.
package router

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/endpoint"
	"github.com/logxen/netrap/internal/sanitize"
)

// LineReceiver is implemented by any endpoint that accepts routed response
// lines into its own outgoing buffer rather than via a direct fd write.
// Only the client endpoint implements this; stdin is handled as a special
// case (direct write) and any other endpoint kind is dropped.
type LineReceiver interface {
	endpoint.Endpoint
	QueueResponseLine(line []byte)
}

// Router resolves a submitter ID against the live endpoint registry and
// dispatches accordingly. It owns no flow-control state — token accounting
// remains the device's responsibility (internal/device).
type Router struct {
	registry Lookup
	stdout   io.Writer
}

// Lookup is the subset of endpoint.Registry the router needs, expressed as
// an interface so router tests can substitute a fake without constructing a
// full registry.
type Lookup interface {
	Get(id int) (endpoint.Endpoint, bool)
}

// New builds a Router that mirrors traffic to stdout.
func New(registry Lookup, stdout io.Writer) *Router {
	return &Router{registry: registry, stdout: stdout}
}

// RouteLine implements spec.md §4.6 steps 1-5 (the token bump in step 6 is
// the caller's responsibility — see internal/device). line must already be
// newline-terminated.
func (r *Router) RouteLine(line []byte, submitterID int, hasSubmitter bool) {
	clean := sanitize.Line(line)

	submitter, ok := r.registry.Get(submitterID)
	isStdin := hasSubmitter && ok && submitter.Kind() == endpoint.KindStdin

	// Step 1/2: always mirror locally, except when the submitter is stdin
	// — its own direct echo below already shows the operator this line, so
	// mirroring again would duplicate it.
	if !isStdin {
		fmt.Fprintf(r.stdout, "< %s", clean)
	}

	if !hasSubmitter || !ok {
		// Step 5: the submitter has been destroyed; nothing further to do.
		return
	}

	if isStdin {
		// Step 3: stdin's response goes directly to its fd, prefixed the
		// same way the stdout mirror would have been.
		prefixed := append([]byte("< "), clean...)
		unix.Write(submitter.FD(), prefixed)
		return
	}

	// Step 4: any other submitter kind that wants routed responses queues
	// them on its own outgoing buffer.
	if recv, ok := submitter.(LineReceiver); ok {
		recv.QueueResponseLine(clean)
	}
}
