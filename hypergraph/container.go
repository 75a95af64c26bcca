package hypergraph

import "github.com/shadowridgedev/atomspace/atom"

// Container is the live, in-memory hypergraph that sqlstore loads atoms
// into and reads node/link identity from. It is the "opaque interface"
// external collaborator named by the spec; sqlstore depends only on this
// interface, never on the Memory implementation directly.
type Container interface {
	// Add inserts e into the container. If an entity with the same
	// identity (type+name for a node, type+outgoing for a link) is already
	// present and merge is true, Add copies e's truth value and values onto
	// the existing entity, overwriting its truth value, and returns the
	// existing entity (its identity is unchanged). When merge is false and
	// an existing entity is found, the existing entity is returned
	// untouched (Add behaves as "insert if absent").
	Add(e atom.Entity, merge bool) atom.Entity
	// Node looks up a previously-added node by (type, name).
	Node(t atom.TypeCode, name string) (atom.Entity, bool)
	// Link looks up a previously-added link by (type, ordered children).
	Link(t atom.TypeCode, outgoing []atom.Entity) (atom.Entity, bool)
	// Remove drops e from the container's indexes. It has no effect on any
	// backing database row.
	Remove(e atom.Entity)
	// Size returns the number of entities currently held.
	Size() int
	// IncomingSet returns every link currently held whose Outgoing
	// contains target.
	IncomingSet(target atom.Entity) []atom.Entity
}
