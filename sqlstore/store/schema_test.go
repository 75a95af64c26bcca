package store_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowridgedev/atomspace/atom"
)

func TestCreateTablesSeedsTheTwoRootSpaces(t *testing.T) {
	s, _ := newTestStore(t)
	st, err := s.GatherStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Spaces)
	assert.Zero(t, st.Atoms)
}

func TestKillDataClearsEveryTableAndReseedsSpaces(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n := atom.NewNode(typeConcept, "to-be-killed")
	require.NoError(t, s.StoreAtom(ctx, n, true))

	require.NoError(t, s.KillData(ctx))

	st, err := s.GatherStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Atoms)
	assert.EqualValues(t, 2, st.Spaces)
}

func TestRenameTablesMovesEveryDataTableAside(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.RenameTables(context.Background(), "_archived"))

	// The live tables are gone; a further operation against them fails.
	_, err := s.GatherStats(context.Background())
	assert.Error(t, err)
}

func TestStoreSpaceTreeRegistersEveryNodeInTheTree(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	root := atom.NewSpace(atom.RootSpace, atom.RootSpace)
	child := atom.NewSpace(100, 0)
	root.AddChild(child)
	grandchild := atom.NewSpace(101, 0)
	child.AddChild(grandchild)

	require.NoError(t, s.StoreSpaceTree(ctx, root))

	st, err := s.GatherStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, st.Spaces) // the two seeded roots plus 100 and 101
}

func TestPrintStatsRendersARowPerTable(t *testing.T) {
	s, _ := newTestStore(t)
	var buf bytes.Buffer
	require.NoError(t, s.PrintStats(context.Background(), &buf))
	out := buf.String()
	assert.Contains(t, out, "Spaces")
	assert.Contains(t, out, "Atoms")
	assert.Contains(t, out, "IDB entries")
}
