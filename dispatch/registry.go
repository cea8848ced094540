package dispatch

import "net/http"

// Registry holds the ordered provider registrations. It is append-only
// during startup and must not be modified once requests are being served;
// request handling reads it without locks.
type Registry struct {
	regs []*Registration
}

// NewRegistry builds a registry from registrations in dispatch order.
func NewRegistry(regs ...*Registration) *Registry {
	return &Registry{regs: regs}
}

// Register appends a registration. Registration order is dispatch order:
// when predicates overlap, the earlier registration wins.
func (r *Registry) Register(reg *Registration) {
	r.regs = append(r.regs, reg)
}

// Match returns the first registration whose route predicate accepts the
// request. A miss is not an error: the caller must pass the request
// through unauthenticated so later mechanisms in the host's chain can
// still apply.
func (r *Registry) Match(req *http.Request) (*Registration, bool) {
	for _, reg := range r.regs {
		if reg.route.Matches(req) {
			return reg, true
		}
	}
	return nil, false
}

// Len returns the number of registrations.
func (r *Registry) Len() int { return len(r.regs) }
