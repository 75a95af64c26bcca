// Package idb implements the identifier buffer of spec §4.3: a
// thread-safe, bidirectional map between in-memory entity handles
// (atom.Entity) and 64-bit identifiers (atom.EID), with monotonic
// allocation and range reservation. The handle->EID direction is served
// by an LRU cache (hashicorp/golang-lru) so long-running processes with
// large hypergraphs don't grow this map without bound; the reverse
// direction is kept consistent via the LRU's eviction callback.
package idb
