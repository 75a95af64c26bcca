package store_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/hypergraph"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
	"github.com/shadowridgedev/atomspace/sqlstore/store"
	"github.com/shadowridgedev/atomspace/sqlstore/typemap"
)

const (
	typeConcept atom.TypeCode = 1
	typeList    atom.TypeCode = 2
)

// testRegistry is the minimal typemap.Registry a test needs: a fixed,
// closed set of (code, name) pairs known ahead of time.
type testRegistry struct {
	byName map[string]atom.TypeCode
	all    []typemap.NamedType
}

func newTestRegistry() *testRegistry {
	r := &testRegistry{byName: make(map[string]atom.TypeCode)}
	r.add(typeConcept, "ConceptNode")
	r.add(typeList, "ListLink")
	return r
}

func (r *testRegistry) add(code atom.TypeCode, name string) {
	r.byName[name] = code
	r.all = append(r.all, typemap.NamedType{Code: code, Name: name})
}

func (r *testRegistry) Types() []typemap.NamedType { return r.all }

func (r *testRegistry) TypeByName(name string) (atom.TypeCode, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func newTestStore(t *testing.T) (*store.Store, *hypergraph.Memory) {
	t.Helper()
	db, err := driver.OpenSQLite(":memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxConnections(8)
	t.Cleanup(func() { db.Close() })

	p, err := pool.New(context.Background(), db, 8)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	container := hypergraph.NewMemory()
	s, err := store.New(context.Background(), p, newTestRegistry(), container)
	require.NoError(t, err)
	require.NoError(t, s.CreateTables(context.Background()))

	return s, container
}

func TestStoreAtomRoundTripsNodeThroughDatabase(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n := atom.NewNode(typeConcept, "apple")
	n.SetTruthValue(atom.SimpleTV(0.5, 0.9))
	require.NoError(t, s.StoreAtom(ctx, n, true))

	loaded, ok, err := s.GetNode(ctx, typeConcept, "apple")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, atom.SimpleTV(0.5, 0.9), loaded.TruthValue())
}

func TestStoreAtomRoundTripsLinkWithChildren(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := atom.NewNode(typeConcept, "a")
	b := atom.NewNode(typeConcept, "b")
	l := atom.NewLink(typeList, a, b)
	require.NoError(t, s.StoreAtom(ctx, l, true))

	loaded, ok, err := s.GetLink(ctx, typeList, []atom.Entity{a, b})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Outgoing(), 2)
	assert.Equal(t, "a", loaded.Outgoing()[0].Name())
	assert.Equal(t, "b", loaded.Outgoing()[1].Name())
}

func TestStoreAtomAssignsAStableEIDAcrossRestores(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n := atom.NewNode(typeConcept, "stable")
	require.NoError(t, s.StoreAtom(ctx, n, true))
	first, ok, err := s.GetNode(ctx, typeConcept, "stable")
	require.NoError(t, err)
	require.True(t, ok)

	n.SetTruthValue(atom.SimpleTV(0.1, 0.2))
	require.NoError(t, s.StoreAtom(ctx, n, true))
	second, ok, err := s.GetNode(ctx, typeConcept, "stable")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Same(t, first, second)
	assert.Equal(t, atom.SimpleTV(0.1, 0.2), second.TruthValue())
}

func TestConcurrentStoreOfTheSameEntityInsertsOnceAndUpdatesTheRest(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n := atom.NewNode(typeConcept, "contended")

	const goroutines = 16
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.StoreAtom(ctx, n, true)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	st, err := s.GatherStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Atoms)
}

func TestStoreAtomWithoutAWiredQueueErrorsOnAsyncRequest(t *testing.T) {
	s, _ := newTestStore(t)
	n := atom.NewNode(typeConcept, "async")
	assert.Error(t, s.StoreAtom(context.Background(), n, false))
}

func TestStoreAtomPersistsAttachedValues(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	key := atom.NewNode(typeConcept, "weight-key")
	n := atom.NewNode(typeConcept, "banana")
	n.SetValue(key, atom.FloatVector{1, 2, 3})
	require.NoError(t, s.StoreAtom(ctx, n, true))

	v, ok := n.Value(key)
	require.True(t, ok)
	assert.Equal(t, atom.FloatVector{1, 2, 3}, v)

	st, err := s.GatherStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Valuations)
}

func TestStoreAtomRejectsOversizedNodeName(t *testing.T) {
	s, _ := newTestStore(t)
	big := make([]byte, atom.MaxNameBytes+1)
	for i := range big {
		big[i] = 'x'
	}
	n := atom.NewNode(typeConcept, string(big))
	err := s.StoreAtom(context.Background(), n, true)
	require.Error(t, err)
	var sizeErr *store.SizeLimitError
	assert.ErrorAs(t, err, &sizeErr)
}

func TestStoreAtomRejectsOversizedLinkArity(t *testing.T) {
	s, _ := newTestStore(t)
	children := make([]atom.Entity, atom.MaxArity+1)
	for i := range children {
		children[i] = atom.NewNode(typeConcept, "c"+strconv.Itoa(i))
	}
	l := atom.NewLink(typeList, children...)
	err := s.StoreAtom(context.Background(), l, true)
	require.Error(t, err)
	var sizeErr *store.SizeLimitError
	assert.ErrorAs(t, err, &sizeErr)
}
