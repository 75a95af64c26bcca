package idb

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/shadowridgedev/atomspace/atom"
)

// DefaultCacheSize bounds the number of live handle<->EID object
// references Buffer keeps pinned in memory. Once an entry is evicted,
// Buffer no longer knows that pairing: sqlstore/store re-resolves a
// LookupByEID miss by fetching the row from the database, while a
// LookupByHandle miss is not re-resolved from the database.
const DefaultCacheSize = 1 << 20

// Buffer is the identifier buffer of spec §4.3. It is safe for concurrent
// use from any number of goroutines.
type Buffer struct {
	mu sync.Mutex

	handles *lru.Cache            // atom.Entity -> atom.EID, bounded.
	byEID   map[atom.EID]atom.Entity // reverse of handles, kept in sync via eviction.

	// inUse never shrinks: once an EID is bound, it is permanently
	// reserved, even after its handle<->EID pair is evicted or removed,
	// so that "an identifier, once assigned, is never reassigned" holds
	// for the lifetime of the process.
	inUse map[atom.EID]struct{}
	next  atom.EID
}

// New returns an empty Buffer whose handle<->EID object-reference cache
// holds at most cacheSize entries.
func New(cacheSize int) (*Buffer, error) {
	b := &Buffer{
		byEID: make(map[atom.EID]atom.Entity),
		inUse: make(map[atom.EID]struct{}),
		next:  1,
	}

	// The eviction callback runs synchronously inside whatever Buffer
	// method call (always holding b.mu) triggered it, so it must not
	// re-acquire b.mu itself.
	onEvicted := func(key, value interface{}) {
		eid := value.(atom.EID)
		if h, ok := b.byEID[eid]; ok && h == key.(atom.Entity) {
			delete(b.byEID, eid)
		}
	}

	cache, err := lru.NewWithEvict(cacheSize, onEvicted)
	if err != nil {
		return nil, err
	}
	b.handles = cache
	return b, nil
}

// Assign binds handle to an EID and returns it. If handle is already
// bound, its existing EID is returned unchanged. Otherwise: if hint is a
// valid, unused EID it is bound; otherwise a fresh EID (current max + 1)
// is allocated.
func (b *Buffer) Assign(handle atom.Entity, hint atom.EID) atom.EID {
	b.mu.Lock()
	defer b.mu.Unlock()

	if v, ok := b.handles.Get(handle); ok {
		return v.(atom.EID)
	}

	eid := hint
	if eid == atom.InvalidEID {
		eid = b.nextFreeLocked()
	} else if _, used := b.inUse[eid]; used {
		eid = b.nextFreeLocked()
	}

	b.bindLocked(handle, eid)
	return eid
}

func (b *Buffer) nextFreeLocked() atom.EID {
	eid := b.next
	for {
		if _, used := b.inUse[eid]; !used {
			return eid
		}
		eid++
	}
}

func (b *Buffer) bindLocked(handle atom.Entity, eid atom.EID) {
	b.inUse[eid] = struct{}{}
	if eid >= b.next {
		b.next = eid + 1
	}
	b.handles.Add(handle, eid)
	b.byEID[eid] = handle
}

// LookupByHandle returns the EID bound to handle, if any.
func (b *Buffer) LookupByHandle(handle atom.Entity) (atom.EID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.handles.Get(handle)
	if !ok {
		return atom.InvalidEID, false
	}
	return v.(atom.EID), true
}

// LookupByEID returns the handle bound to eid, if any and if it is still
// resident in the bounded cache.
func (b *Buffer) LookupByEID(eid atom.EID) (atom.Entity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.byEID[eid]
	return h, ok
}

// Bind records that eid and handle, both already known to the caller (for
// instance, a row freshly loaded from the database), now refer to each
// other. It behaves like Assign(handle, eid) but never allocates a fresh
// EID: the caller is asserting that this exact pairing is correct.
func (b *Buffer) Bind(handle atom.Entity, eid atom.EID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.handles.Get(handle); ok && v.(atom.EID) == eid {
		return
	}
	b.bindLocked(handle, eid)
}

// ReserveUpto ensures the next freshly allocated EID is strictly greater
// than n. It is used at startup to recover the high-water mark from
// MAX(uuid) in the Atoms table.
func (b *Buffer) ReserveUpto(n atom.EID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n+1 > b.next {
		b.next = n + 1
	}
}

// Remove drops handle's binding in both directions. The underlying EID
// remains permanently reserved and is never reissued. Removing a handle
// does not delete any database row.
func (b *Buffer) Remove(handle atom.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.handles.Get(handle); ok {
		eid := v.(atom.EID)
		b.handles.Remove(handle)
		delete(b.byEID, eid)
	}
}

// Len returns the number of handle<->EID pairs currently resident in the
// bounded cache (not the total count of EIDs ever assigned).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles.Len()
}
