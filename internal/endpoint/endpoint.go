// Package endpoint defines the common shape every participant in the event
// loop implements, and the registry that tracks which endpoints currently
// exist.
package endpoint

// Endpoint is any participant in the event loop: the device, a listener, a
// client, or stdin. Interest sets are queried fresh every loop iteration
// rather than maintained as separately-mutated state, which is why this
// interface has no "register/unregister for write interest" methods: a
// write-interested endpoint is simply one for which WantWrite() is
// currently true.
type Endpoint interface {
	// ID is the stable handle other endpoints use to address this one
	// (e.g. the device's lastSubmitter reference) even after it no longer
	// exists in the registry.
	ID() int

	// FD is the raw file descriptor to multiplex on.
	FD() int

	// Kind identifies which variant this endpoint is, for routing and
	// logging decisions that depend on it (e.g. the stdout-mirror rule in
	// spec.md §4.6).
	Kind() Kind

	// WantRead, WantWrite and WantErr report this endpoint's current
	// interest in being polled for each event kind.
	WantRead() bool
	WantWrite() bool
	WantErr() bool

	// HandleReadable, HandleWritable and HandleError are dispatched by the
	// event loop once poll(2) reports the corresponding readiness.
	HandleReadable() error
	HandleWritable() error
	HandleError() error

	// Close releases the endpoint's fd and any other resources. It is
	// called exactly once, when the endpoint is removed from the registry.
	Close() error
}

// Kind identifies an Endpoint's variant for logging and for type-directed
// dispatch in the router (e.g. "is the submitter stdin?").
type Kind int

const (
	KindStdin Kind = iota
	KindListener
	KindClient
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindStdin:
		return "stdin"
	case KindListener:
		return "listener"
	case KindClient:
		return "client"
	case KindDevice:
		return "device"
	default:
		return "unknown"
	}
}
