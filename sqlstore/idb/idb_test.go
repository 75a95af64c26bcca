package idb_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/idb"
)

func TestAssignIsIdempotentForSameHandle(t *testing.T) {
	b, err := idb.New(16)
	require.NoError(t, err)

	var n = atom.NewNode(1, "a")
	var first = b.Assign(n, atom.InvalidEID)
	var second = b.Assign(n, atom.InvalidEID)
	assert.Equal(t, first, second)

	eid, ok := b.LookupByHandle(n)
	assert.True(t, ok)
	assert.Equal(t, first, eid)

	h, ok := b.LookupByEID(first)
	assert.True(t, ok)
	assert.Same(t, n, h)
}

func TestAssignHonorsUnusedHint(t *testing.T) {
	b, err := idb.New(16)
	require.NoError(t, err)

	var n = atom.NewNode(1, "a")
	var eid = b.Assign(n, 42)
	assert.Equal(t, atom.EID(42), eid)
}

func TestAssignFallsBackWhenHintInUse(t *testing.T) {
	b, err := idb.New(16)
	require.NoError(t, err)

	var a = atom.NewNode(1, "a")
	var b2 = atom.NewNode(1, "b")

	require.Equal(t, atom.EID(42), b.Assign(a, 42))
	var got = b.Assign(b2, 42)
	assert.NotEqual(t, atom.EID(42), got)
}

func TestReserveUptoAdvancesAllocator(t *testing.T) {
	b, err := idb.New(16)
	require.NoError(t, err)

	b.ReserveUpto(100)
	var n = atom.NewNode(1, "a")
	var eid = b.Assign(n, atom.InvalidEID)
	assert.Equal(t, atom.EID(101), eid)
}

func TestRemoveDropsBothDirectionsButNeverReissuesEID(t *testing.T) {
	b, err := idb.New(16)
	require.NoError(t, err)

	var n = atom.NewNode(1, "a")
	var eid = b.Assign(n, atom.InvalidEID)

	b.Remove(n)
	_, ok := b.LookupByHandle(n)
	assert.False(t, ok)
	_, ok = b.LookupByEID(eid)
	assert.False(t, ok)

	// A second entity must not be handed the same, now-removed EID.
	var n2 = atom.NewNode(1, "b")
	var eid2 = b.Assign(n2, atom.InvalidEID)
	assert.NotEqual(t, eid, eid2)
}

func TestConcurrentAssignNeverDoubleBindsAnEID(t *testing.T) {
	b, err := idb.New(1024)
	require.NoError(t, err)

	const n = 200
	handles := make([]*atom.Node, n)
	for i := range handles {
		handles[i] = atom.NewNode(1, "x")
	}

	var wg sync.WaitGroup
	eids := make([]atom.EID, n)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eids[i] = b.Assign(handles[i], atom.InvalidEID)
		}(i)
	}
	wg.Wait()

	seen := make(map[atom.EID]bool, n)
	for _, eid := range eids {
		assert.False(t, seen[eid], "EID %d assigned twice", eid)
		seen[eid] = true
	}
}
