package endpoint

// Registry tracks the set of currently-live endpoints, in insertion order,
// keyed by a stable integer ID that survives lookups even after the
// endpoint behind it has been removed (the lookup simply fails, which is
// how a "weak reference" to a destroyed submitter is represented — see
// spec.md §9).
//
// Registry is only ever touched from the single event-loop goroutine, so
// unlike the teacher's goroutine-shared registry (coordinator/internal/
// registry/registry.go) it carries no mutex.
type Registry struct {
	next int
	ids  []int
	byID map[int]Endpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[int]Endpoint{}}
}

// Add registers e under e.ID(). The caller is expected to have already set
// that ID on e (see NextID).
func (r *Registry) Add(e Endpoint) {
	r.ids = append(r.ids, e.ID())
	r.byID[e.ID()] = e
}

// NextID allocates a fresh, never-reused ID for a new endpoint.
func (r *Registry) NextID() int {
	id := r.next
	r.next++
	return id
}

// Remove closes and deregisters the endpoint with the given ID, if it is
// still present. Safe to call during iteration over Endpoints(), which
// returns a snapshot.
func (r *Registry) Remove(id int) error {
	e, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	for i, existing := range r.ids {
		if existing == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
	return e.Close()
}

// Get resolves an ID to its live endpoint. ok is false if the endpoint has
// been destroyed (or never existed) — the "weak reference is invalid" case
// in spec.md §4.6/§9.
func (r *Registry) Get(id int) (Endpoint, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// Endpoints returns a snapshot of all currently-registered endpoints in
// insertion order. The loop iterates this snapshot even if a handler
// removes an endpoint mid-iteration.
func (r *Registry) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// Len reports how many endpoints are currently registered.
func (r *Registry) Len() int {
	return len(r.ids)
}
