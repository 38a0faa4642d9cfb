package proto

import "github.com/vrhub/collab/plugin"

// binding records which plug-in owns a contiguous message-id range.
type binding struct {
	base    uint16
	n       int
	plug    plugin.Plugin
	peerIdx int // the peer's local index for this plug-in, if known
}

// Registry is a per-endpoint dynamic table mapping messageId -> owning
// plug-in. The base protocol occupies [0, MessagesEnd); each registration
// extends the table by the plug-in's NumMessages() entries starting at the
// table's current length, enforcing P1 (id disjointness) by construction:
// ranges are appended, never overlapped.
type Registry struct {
	bindings []binding // indexed by registration order, not by message id
	next     uint16    // next free message id (starts at MessagesEnd)
}

// NewRegistry returns a registry with its message-id cursor positioned
// just past the base protocol's reserved range.
func NewRegistry() *Registry {
	return &Registry{next: MessagesEnd}
}

// Register extends the table by p.NumMessages() entries and returns the
// base message id assigned to p.
func (r *Registry) Register(p plugin.Plugin) uint16 {
	base := r.next
	n := p.NumMessages()
	r.bindings = append(r.bindings, binding{base: base, n: n, plug: p})
	r.next += uint16(n)
	return base
}

// Lookup returns the plug-in owning message id, and its base, if id falls
// within a registered range (or the base protocol's own range, in which
// case ok is true but plug-in is nil).
func (r *Registry) Lookup(id uint16) (p plugin.Plugin, base uint16, ok bool) {
	if id < MessagesEnd {
		return nil, 0, true
	}
	for _, b := range r.bindings {
		if id >= b.base && id < b.base+uint16(b.n) {
			return b.plug, b.base, true
		}
	}
	return nil, 0, false
}

// Len returns MessagesEnd plus the sum of every registered plug-in's
// NumMessages(), i.e. the total size of the message-id space in use.
func (r *Registry) Len() int {
	total := int(MessagesEnd)
	for _, b := range r.bindings {
		total += b.n
	}
	return total
}

// Names returns the registered plug-in names in registration order, used
// when composing the shared-protocol intersection for a new connection.
func (r *Registry) Names() []string {
	out := make([]string, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = b.plug.Name()
	}
	return out
}

// ByName returns the binding base and plug-in registered under name, if
// any.
func (r *Registry) ByName(name string) (p plugin.Plugin, base uint16, ok bool) {
	for _, b := range r.bindings {
		if b.plug.Name() == name {
			return b.plug, b.base, true
		}
	}
	return nil, 0, false
}

// Index returns the server-wide registration index of the plug-in
// registered under name (0-based, in registration order), used to keep a
// connection's shared-protocol list sorted by server-wide index.
func (r *Registry) Index(name string) (idx int, ok bool) {
	for i, b := range r.bindings {
		if b.plug.Name() == name {
			return i, true
		}
	}
	return 0, false
}
