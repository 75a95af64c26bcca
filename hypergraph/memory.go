package hypergraph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shadowridgedev/atomspace/atom"
)

// Memory is a straightforward in-memory Container, safe for concurrent use.
// It is a reference implementation: production deployments are expected to
// supply a richer AtomSpace-like container, but Memory is complete enough
// to exercise every load path in sqlstore/store.
type Memory struct {
	mu sync.RWMutex

	nodes map[atom.TypeCode]map[string]atom.Entity
	links map[atom.TypeCode]map[string]atom.Entity

	// incoming indexes, for every entity e currently held as a link child,
	// the set of links directly containing e. The outer map is keyed by the
	// child entity (pointer identity); the inner map by each link's type
	// plus its outgoingKey signature.
	incoming map[atom.Entity]map[string]atom.Entity
}

// NewMemory returns an empty Memory container.
func NewMemory() *Memory {
	return &Memory{
		nodes:    make(map[atom.TypeCode]map[string]atom.Entity),
		links:    make(map[atom.TypeCode]map[string]atom.Entity),
		incoming: make(map[atom.Entity]map[string]atom.Entity),
	}
}

func outgoingKey(outgoing []atom.Entity) string {
	var sb strings.Builder
	for i, e := range outgoing {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%p", e)
	}
	return sb.String()
}

func (m *Memory) Node(t atom.TypeCode, name string) (atom.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byName, ok := m.nodes[t]
	if !ok {
		return nil, false
	}
	e, ok := byName[name]
	return e, ok
}

func (m *Memory) Link(t atom.TypeCode, outgoing []atom.Entity) (atom.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byKey, ok := m.links[t]
	if !ok {
		return nil, false
	}
	e, ok := byKey[outgoingKey(outgoing)]
	return e, ok
}

func (m *Memory) Add(e atom.Entity, merge bool) atom.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.IsNode() {
		byName, ok := m.nodes[e.Type()]
		if !ok {
			byName = make(map[string]atom.Entity)
			m.nodes[e.Type()] = byName
		}
		if existing, ok := byName[e.Name()]; ok {
			if merge {
				m.mergeLocked(existing, e)
			}
			return existing
		}
		byName[e.Name()] = e
		return e
	}

	byKey, ok := m.links[e.Type()]
	if !ok {
		byKey = make(map[string]atom.Entity)
		m.links[e.Type()] = byKey
	}
	key := outgoingKey(e.Outgoing())
	if existing, ok := byKey[key]; ok {
		if merge {
			m.mergeLocked(existing, e)
		}
		return existing
	}
	byKey[key] = e
	incomingKey := fmt.Sprintf("%d:%s", e.Type(), key)
	for _, child := range e.Outgoing() {
		set, ok := m.incoming[child]
		if !ok {
			set = make(map[string]atom.Entity)
			m.incoming[child] = set
		}
		set[incomingKey] = e
	}
	return e
}

// mergeLocked copies the truth value and attached values of src onto dst,
// without changing dst's identity. Callers must hold m.mu.
func (m *Memory) mergeLocked(dst, src atom.Entity) {
	dst.SetTruthValue(src.TruthValue())
	for _, k := range src.ValueKeys() {
		v, _ := src.Value(k)
		dst.SetValue(k, v)
	}
}

func (m *Memory) Remove(e atom.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.IsNode() {
		if byName, ok := m.nodes[e.Type()]; ok {
			delete(byName, e.Name())
		}
		delete(m.incoming, e)
		return
	}
	key := outgoingKey(e.Outgoing())
	if byKey, ok := m.links[e.Type()]; ok {
		delete(byKey, key)
	}
	incomingKey := fmt.Sprintf("%d:%s", e.Type(), key)
	for _, child := range e.Outgoing() {
		if set, ok := m.incoming[child]; ok {
			delete(set, incomingKey)
		}
	}
	delete(m.incoming, e)
}

func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, byName := range m.nodes {
		n += len(byName)
	}
	for _, byKey := range m.links {
		n += len(byKey)
	}
	return n
}

func (m *Memory) IncomingSet(target atom.Entity) []atom.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.incoming[target]
	if !ok {
		return nil
	}
	out := make([]atom.Entity, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}
