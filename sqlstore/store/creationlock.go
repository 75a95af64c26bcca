package store

import (
	"sync"

	"github.com/shadowridgedev/atomspace/atom"
)

// creationTracker implements the creation lock protocol of §5: for a given
// EID, exactly one caller ever gets to INSERT its row; every other caller,
// concurrent or later, UPDATEs. Two mutexes are used in a fixed order --
// creationMu then cacheMu -- to let a waiter block on creationMu without
// holding cacheMu, so cacheMu is never held across a wait.
type creationTracker struct {
	creationMu sync.Mutex
	cond       *sync.Cond

	cacheMu  sync.Mutex
	inFlight map[atom.EID]struct{}
	known    map[atom.EID]struct{}
}

func newCreationTracker() *creationTracker {
	t := &creationTracker{
		inFlight: make(map[atom.EID]struct{}),
		known:    make(map[atom.EID]struct{}),
	}
	t.cond = sync.NewCond(&t.creationMu)
	return t
}

// creationLock is the released-on-success handle returned by acquire. A
// zero-value creationLock (insertMode false) holds nothing: release is then
// a no-op, matching "update mode" of the protocol.
type creationLock struct {
	tracker    *creationTracker
	eid        atom.EID
	insertMode bool
}

// acquire blocks until it can report one of two outcomes for eid: "insert
// mode", with creationMu held until release is called, or "update mode",
// with nothing held.
func (t *creationTracker) acquire(eid atom.EID) creationLock {
	t.creationMu.Lock()
	for {
		t.cacheMu.Lock()
		if _, ok := t.known[eid]; ok {
			t.cacheMu.Unlock()
			t.creationMu.Unlock()
			return creationLock{tracker: t, eid: eid, insertMode: false}
		}
		if _, ok := t.inFlight[eid]; ok {
			t.cacheMu.Unlock()
			t.cond.Wait()
			continue
		}
		t.inFlight[eid] = struct{}{}
		t.cacheMu.Unlock()
		return creationLock{tracker: t, eid: eid, insertMode: true}
	}
}

// release ends an insert-mode lock. success=true moves eid from inFlight
// into known, so every subsequent acquire (and every waiter woken here)
// observes update mode; success=false simply drops eid from inFlight so a
// retried store can attempt the INSERT again.
func (l creationLock) release(success bool) {
	if !l.insertMode {
		return
	}
	t := l.tracker
	t.cacheMu.Lock()
	delete(t.inFlight, l.eid)
	if success {
		t.known[l.eid] = struct{}{}
	}
	t.cacheMu.Unlock()
	t.creationMu.Unlock()
	t.cond.Broadcast()
}

// markKnown records that eid already has a row, without going through the
// insert/release cycle -- used when a load path observes an existing row
// directly, so a later store of the same EID goes straight to update mode.
func (t *creationTracker) markKnown(eid atom.EID) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	t.known[eid] = struct{}{}
}
